// Package storage provides input object storage abstraction.
//
// Summand files usually live on the local filesystem, but runs on shared
// clusters fetch them from a Tencent COS bucket first. The driver treats
// `cos://KEY` input paths as keys into the configured bucket.
package storage

import (
	"context"
	"io"

	"github.com/stelzch/allreduce/pkg/config"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// Storage defines the interface for fetching input objects.
type Storage interface {
	// Open returns a reader for the object at the given key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// FetchFile downloads the object at key into localPath.
	FetchFile(ctx context.Context, key string, localPath string) error

	// Exists checks whether an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Type represents the storage backend type.
type Type string

const (
	// TypeLocal serves objects from the local filesystem.
	TypeLocal Type = "local"
	// TypeCOS serves objects from a Tencent Cloud COS bucket.
	TypeCOS Type = "cos"
)

// New creates a Storage instance based on the configuration.
func New(cfg *config.StorageConfig) (Storage, error) {
	switch Type(cfg.Type) {
	case TypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	case TypeCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return nil, apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}
}

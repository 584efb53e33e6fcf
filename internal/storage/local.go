package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// LocalStorage implements Storage over a base directory of the local
// filesystem.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "."
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (s *LocalStorage) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.basePath, key)
}

// Open returns a reader for the file at key.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIoFailure, "open local object", err)
	}
	return file, nil
}

// FetchFile copies the object at key to localPath.
func (s *LocalStorage) FetchFile(ctx context.Context, key string, localPath string) error {
	src, err := s.Open(ctx, key)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "create target directory", err)
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "create target file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return apperrors.Wrap(apperrors.CodeIoFailure, "copy object", err)
	}
	return nil
}

// Exists checks whether a file exists at key.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.resolve(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CodeIoFailure, "stat local object", err)
}

package repository

import (
	"context"

	"gorm.io/gorm"

	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// RunRepository stores and queries reduction run records.
type RunRepository interface {
	// SaveRun persists one run record.
	SaveRun(ctx context.Context, record *RunRecord) error

	// RecentRuns returns up to limit records, newest first.
	RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// RunsForFile returns the records of one input file, newest first.
	RunsForFile(ctx context.Context, inputFile string, limit int) ([]*RunRecord, error)
}

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// SaveRun persists one run record.
func (r *GormRunRepository) SaveRun(ctx context.Context, record *RunRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "save run record", err)
	}
	return nil
}

// RecentRuns returns up to limit records, newest first.
func (r *GormRunRepository) RecentRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	var records []*RunRecord

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "query recent runs", err)
	}
	return records, nil
}

// RunsForFile returns the records of one input file, newest first.
func (r *GormRunRepository) RunsForFile(ctx context.Context, inputFile string, limit int) ([]*RunRecord, error) {
	var records []*RunRecord

	err := r.db.WithContext(ctx).
		Where("input_file = ?", inputFile).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "query runs for file", err)
	}
	return records, nil
}

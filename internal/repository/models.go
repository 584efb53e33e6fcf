// Package repository persists reduction run records.
package repository

import (
	"encoding/json"
	"time"
)

// RunRecord represents the reduction_runs table: one row per completed
// driver invocation.
type RunRecord struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	InputFile    string    `gorm:"column:input_file;type:varchar(512)"`
	Strategy     string    `gorm:"column:strategy;type:varchar(32)"`
	Mode         string    `gorm:"column:mode;type:varchar(64)"`
	NSummands    uint64    `gorm:"column:n_summands"`
	Ranks        int       `gorm:"column:ranks"`
	Sum          float64   `gorm:"column:sum"`
	SumBits      string    `gorm:"column:sum_bits;type:varchar(20)"`
	Repetitions  int       `gorm:"column:repetitions"`
	AvgMicros    float64   `gorm:"column:avg_micros"`
	StddevMicros float64   `gorm:"column:stddev_micros"`
	Durations    JSONField `gorm:"column:durations;type:json"`
	CreateTime   time.Time `gorm:"column:create_time;autoCreateTime"`
}

// TableName returns the table name for RunRecord.
func (RunRecord) TableName() string {
	return "reduction_runs"
}

// SetDurations stores the per-repetition durations in microseconds.
func (r *RunRecord) SetDurations(micros []float64) error {
	data, err := json.Marshal(micros)
	if err != nil {
		return err
	}
	r.Durations = data
	return nil
}

// DurationsMicros decodes the stored per-repetition durations.
func (r *RunRecord) DurationsMicros() ([]float64, error) {
	if len(r.Durations) == 0 {
		return nil, nil
	}
	var micros []float64
	if err := json.Unmarshal(r.Durations, &micros); err != nil {
		return nil, err
	}
	return micros, nil
}

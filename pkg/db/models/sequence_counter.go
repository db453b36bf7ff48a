package models

import "time"

// SequenceCounter holds the last-issued value for one id namespace. The
// row is advanced with a conditional update; a caller whose expected value
// no longer matches must abort and re-read.
type SequenceCounter struct {
	Namespace string    `gorm:"column:namespace;primaryKey"`
	LastValue int64     `gorm:"column:last_value;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SequenceCounter) TableName() string { return "sequence_counters" }

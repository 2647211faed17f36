// Package models contains the persisted entities of the lot labelling service
package models

import "time"

// Sequence counter keys.
const (
	SequenceKeyLot     = "next_lot_sequence"
	SequenceKeyReceipt = "next_receipt_number"
)

// SequenceCounter holds the next value to hand out for a named monotonic counter.
// Rows are created lazily with CurrentValue 1 and only ever move forward.
type SequenceCounter struct {
	Key          string    `gorm:"column:key;primaryKey;size:64" json:"key"`
	CurrentValue int64     `gorm:"not null;default:1" json:"current_value"`
	CreatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt    time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (SequenceCounter) TableName() string { return "sequence_counters" }

// SequenceCounterFilter represents filter criteria for sequence counter queries
type SequenceCounterFilter struct {
	Key *string
}

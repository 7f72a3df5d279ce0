package model

import "time"

// RunRecord is the outcome of one algorithm within a printBookings run.
type RunRecord struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	RunID        string `gorm:"size:36;index;not null" json:"run_id"`
	Algorithm    string `gorm:"size:16;not null" json:"algorithm"`
	Total        int    `gorm:"not null" json:"total"`
	Accepted     int    `gorm:"not null" json:"accepted"`
	Rejected     int    `gorm:"not null" json:"rejected"`
	InvalidCount int    `gorm:"not null" json:"invalid_count"`

	// Admission order, with the slot of each accepted booking alongside.
	AcceptedIndices []int `gorm:"serializer:json" json:"accepted_indices"`
	Slots           []int `gorm:"serializer:json" json:"slots"`

	StartedAt  time.Time `gorm:"not null" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`
	CreatedAt  time.Time `json:"created_at"`
}

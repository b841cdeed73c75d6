package entity

import (
	"time"

	"github.com/google/uuid"
)

// ExtractJob represents one document extraction run for data transfer between layers.
type ExtractJob struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	Format       string     `json:"format"`
	ContentHash  string     `json:"content_hash"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	EventCount   int        `json:"event_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

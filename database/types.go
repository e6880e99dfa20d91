package database

import "time"

// LeaseRecord represents an election lease row in the database.
type LeaseRecord struct {
	ElectionName  string
	ParticipantID string
	AcquiredAt    time.Time
	ExpiresAt     time.Time
	Metadata      map[string]string
}

package models

import "github.com/google/uuid"

// NewID returns a time-ordered surrogate identifier for a new record.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewCommitID returns a random identifier for a commit. Commit ids are shown
// and looked up by short prefix, so their leading characters must not share
// the timestamp that leads a time-ordered id.
func NewCommitID() string {
	return uuid.New().String()
}

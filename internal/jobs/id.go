// Package jobs generates identifiers for processing sessions and batches and
// parses the API routes that address them.
package jobs

import (
	"github.com/google/uuid"
)

// ID prefixes. Every identifier handed to callers carries one so ids from
// different lifecycles cannot be confused in logs or routes.
const (
	SessionPrefix = "sess-"
	BatchPrefix   = "batch-"
)

// GenerateID creates a new random ID with the given prefix.
// The prefix should include a trailing dash, e.g. "sess-", "batch-".
func GenerateID(prefix string) string {
	return prefix + uuid.NewString()
}

// NewSessionID returns an id for one two-stage processing session.
func NewSessionID() string {
	return GenerateID(SessionPrefix)
}

// NewBatchID returns an id for one multi-image batch.
func NewBatchID() string {
	return GenerateID(BatchPrefix)
}

// Package store owns ProcessingSession lifecycle: create at call start, seal
// exactly once at call end, evict after a retention window.
//
// MemoryStore is the primary store. A sealed session can additionally be
// archived to DynamoDB so it stays retrievable after in-memory eviction.
// Archive records use a single-table design (PK SESSION#{sessionId}, SK META)
// with a TTL attribute (expiresAt) that auto-deletes them after 24 hours.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

// SessionTTL is the time-to-live for archived session records.
const SessionTTL = 24 * time.Hour

// ErrSealed is returned when a sealed session is mutated or sealed again.
var ErrSealed = errors.New("processing session is sealed")

// SessionStore is the injected session registry used by the two-stage
// processor. Implementations are safe for concurrent use.
//
// Get returns (nil, nil) when the session does not exist.
type SessionStore interface {
	Create(ctx context.Context, originalPrompt string) (*ProcessingSession, error)
	Seal(ctx context.Context, s *ProcessingSession) error
	Get(ctx context.Context, sessionID string) (*ProcessingSession, error)
	EvictOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Archive persists sealed sessions beyond in-memory retention.
type Archive interface {
	Archive(ctx context.Context, s *ProcessingSession) error
	Load(ctx context.Context, sessionID string) (*ProcessingSession, error)
}

// ProcessingSession is the metadata of one two-stage processing call. The
// caller that created it is its only writer until Seal.
type ProcessingSession struct {
	SessionID            string               `json:"sessionId"`
	OriginalPrompt       string               `json:"originalPrompt"`
	Stages               []domain.StageRecord `json:"stages"`
	StartTime            time.Time            `json:"startTime"`
	EndTime              *time.Time           `json:"endTime,omitempty"`
	TotalProcessingTime  time.Duration        `json:"totalProcessingTime"`
	OrchestrationTime    time.Duration        `json:"orchestrationTime"`
	OptimizationTime     time.Duration        `json:"optimizationTime"`
	GenerationTime       time.Duration        `json:"generationTime"`
	AppliedOptimizations []string             `json:"appliedOptimizations"`
	FallbackUsed         bool                 `json:"fallbackUsed"`
	Notes                []string             `json:"notes,omitempty"`
	Sealed               bool                 `json:"sealed"`
}

// AddStage appends a stage record.
func (s *ProcessingSession) AddStage(r domain.StageRecord) error {
	if s.Sealed {
		return ErrSealed
	}
	s.Stages = append(s.Stages, r.Clone())
	return nil
}

// AddOptimizations appends optimization reasons in order.
func (s *ProcessingSession) AddOptimizations(reasons ...string) error {
	if s.Sealed {
		return ErrSealed
	}
	s.AppliedOptimizations = append(s.AppliedOptimizations, reasons...)
	return nil
}

// AddNote appends an observability note.
func (s *ProcessingSession) AddNote(note string) error {
	if s.Sealed {
		return ErrSealed
	}
	s.Notes = append(s.Notes, note)
	return nil
}

// MarkFallback records that a fallback path produced the result.
func (s *ProcessingSession) MarkFallback() error {
	if s.Sealed {
		return ErrSealed
	}
	s.FallbackUsed = true
	return nil
}

// Clone returns a deep copy.
func (s *ProcessingSession) Clone() *ProcessingSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Stages = domain.CloneStages(s.Stages)
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	if s.AppliedOptimizations != nil {
		out.AppliedOptimizations = append([]string(nil), s.AppliedOptimizations...)
	}
	if s.Notes != nil {
		out.Notes = append([]string(nil), s.Notes...)
	}
	return &out
}

// seal finalizes timing and freezes the session.
func (s *ProcessingSession) seal(now time.Time) error {
	if s.Sealed {
		return ErrSealed
	}
	if now.Before(s.StartTime) {
		now = s.StartTime
	}
	s.EndTime = &now
	s.TotalProcessingTime = now.Sub(s.StartTime)
	s.Sealed = true
	return nil
}

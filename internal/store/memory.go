package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/jobs"
)

// MemoryStore keeps sessions in memory. It stores snapshots only: callers
// mutate their own copy and hand it back through Seal.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*ProcessingSession
	archive  Archive
	now      func() time.Time
}

// Compile-time interface check.
var _ SessionStore = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithArchive archives every sealed session and consults the archive on
// in-memory misses.
func WithArchive(a Archive) MemoryOption {
	return func(m *MemoryStore) { m.archive = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*ProcessingSession),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new unsealed session and returns the caller's copy.
func (m *MemoryStore) Create(_ context.Context, originalPrompt string) (*ProcessingSession, error) {
	s := &ProcessingSession{
		SessionID:      jobs.NewSessionID(),
		OriginalPrompt: originalPrompt,
		StartTime:      m.now(),
	}
	m.mu.Lock()
	m.sessions[s.SessionID] = s.Clone()
	m.mu.Unlock()
	return s, nil
}

// Seal finalizes s, stores the sealed snapshot and archives it when an
// archive is configured. Archive failures are logged, not returned.
func (m *MemoryStore) Seal(ctx context.Context, s *ProcessingSession) error {
	m.mu.Lock()
	stored, ok := m.sessions[s.SessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("seal session %s: not found", s.SessionID)
	}
	if stored.Sealed {
		m.mu.Unlock()
		return fmt.Errorf("seal session %s: %w", s.SessionID, ErrSealed)
	}
	if err := s.seal(m.now()); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("seal session %s: %w", s.SessionID, err)
	}
	snapshot := s.Clone()
	m.sessions[s.SessionID] = snapshot
	m.mu.Unlock()

	log.Debug().
		Str("session_id", s.SessionID).
		Dur("duration", s.TotalProcessingTime).
		Bool("fallback_used", s.FallbackUsed).
		Msg("Processing session sealed")

	if m.archive != nil {
		if err := m.archive.Archive(ctx, snapshot); err != nil {
			log.Warn().Err(err).Str("session_id", s.SessionID).Msg("Failed to archive session, continuing")
		}
	}
	return nil
}

// Get returns a copy of the sealed session, or (nil, nil) when it is
// unknown or still in flight.
func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*ProcessingSession, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		if !s.Sealed {
			return nil, nil
		}
		return s.Clone(), nil
	}
	if m.archive == nil {
		return nil, nil
	}
	return m.archive.Load(ctx, sessionID)
}

// EvictOlderThan drops sealed sessions that ended before cutoff and returns
// how many were removed. In-flight sessions are never evicted.
func (m *MemoryStore) EvictOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Sealed && s.EndTime != nil && s.EndTime.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		log.Debug().Int("evicted", n).Time("cutoff", cutoff).Msg("Evicted processing sessions")
	}
	return n, nil
}

// List returns copies of all retained sessions, newest first.
func (m *MemoryStore) List(_ context.Context) []*ProcessingSession {
	m.mu.RLock()
	out := make([]*ProcessingSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

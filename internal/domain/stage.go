package domain

import "time"

// StageStatus is the lifecycle state of one pipeline stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s StageStatus) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// StageRecord tracks one stage. A record moves to a terminal status exactly
// once; later Complete/Fail calls are ignored and report false.
type StageRecord struct {
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartTime time.Time   `json:"startTime"`
	EndTime   *time.Time  `json:"endTime,omitempty"`
	Error     string      `json:"error,omitempty"`
	Output    string      `json:"output,omitempty"`
}

// NewStage returns a pending record.
func NewStage(name string) *StageRecord {
	return &StageRecord{Name: name, Status: StagePending}
}

// Start marks the stage as processing.
func (s *StageRecord) Start(now time.Time) {
	if s.Status != StagePending {
		return
	}
	s.Status = StageProcessing
	s.StartTime = now
}

// Complete records a successful output.
func (s *StageRecord) Complete(now time.Time, output string) bool {
	if s.Status.IsTerminal() {
		return false
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	if now.Before(s.StartTime) {
		now = s.StartTime
	}
	s.Status = StageCompleted
	s.EndTime = &now
	s.Output = output
	return true
}

// Fail records the stage error.
func (s *StageRecord) Fail(now time.Time, err error) bool {
	if s.Status.IsTerminal() {
		return false
	}
	if s.StartTime.IsZero() {
		s.StartTime = now
	}
	if now.Before(s.StartTime) {
		now = s.StartTime
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s.Status = StageFailed
	s.EndTime = &now
	s.Error = msg
	return true
}

// Duration is EndTime-StartTime for terminal records, zero otherwise.
func (s StageRecord) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Clone returns an independent copy.
func (s StageRecord) Clone() StageRecord {
	out := s
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	return out
}

// CloneStages deep-copies a stage list.
func CloneStages(in []StageRecord) []StageRecord {
	if in == nil {
		return nil
	}
	out := make([]StageRecord, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

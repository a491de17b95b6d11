package metrics

import (
	"io"
	"os"
	"sync"
	"time"
)

// Emitter publishes the pipeline's per-call metrics. A nil *Emitter is valid
// and emits nothing, so components can hold one unconditionally.
type Emitter struct {
	namespace string

	mu  sync.Mutex
	out io.Writer
}

// NewEmitter returns an Emitter for namespace writing to out (stdout when nil).
func NewEmitter(namespace string, out io.Writer) *Emitter {
	if out == nil {
		out = os.Stdout
	}
	return &Emitter{namespace: namespace, out: out}
}

// lockedWriter serialises whole lines from concurrent recorders.
type lockedWriter struct{ e *Emitter }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	return w.e.out.Write(p)
}

func (e *Emitter) recorder(operation string) *Recorder {
	return NewWithWriter(e.namespace, lockedWriter{e}).Dimension("Operation", operation)
}

// TwoStage records one two-stage processing call.
func (e *Emitter) TwoStage(sessionID string, total time.Duration, fallbackUsed bool) {
	if e == nil {
		return
	}
	fallback := 0.0
	if fallbackUsed {
		fallback = 1
	}
	e.recorder("two-stage").
		Duration("TwoStageTotalMs", total).
		Metric("TwoStageFallback", fallback, UnitCount).
		Property("sessionId", sessionID).
		Flush()
}

// BatchStats summarise one multi-image batch.
type BatchStats struct {
	BatchID   string
	Size      int
	Processed int
	Failed    int
	Coherence float64
	Total     time.Duration
	Parallel  bool
}

// Batch records one multi-image batch.
func (e *Emitter) Batch(s BatchStats) {
	if e == nil {
		return
	}
	e.recorder("multi-image").
		Metric("BatchSize", float64(s.Size), UnitCount).
		Metric("BatchProcessed", float64(s.Processed), UnitCount).
		Metric("BatchFailed", float64(s.Failed), UnitCount).
		Metric("BatchCoherence", s.Coherence, UnitNone).
		Duration("BatchTotalMs", s.Total).
		Property("batchId", s.BatchID).
		Property("parallel", s.Parallel).
		Flush()
}

// KeyValidation records one API key validation probe.
func (e *Emitter) KeyValidation(result string, elapsed time.Duration) {
	if e == nil {
		return
	}
	e.recorder("key-validation").
		Dimension("Result", result).
		Duration("ApiKeyValidationMs", elapsed).
		Count("ApiKeyValidationResult").
		Flush()
}

// Request records one HTTP request.
func (e *Emitter) Request(endpoint, method string, status int, elapsed time.Duration) {
	if e == nil {
		return
	}
	e.recorder("http").
		Dimension("Endpoint", endpoint).
		Duration("RequestLatencyMs", elapsed).
		Count("RequestCount").
		Property("method", method).
		Property("statusCode", status).
		Flush()
}

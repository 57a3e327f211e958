// Package sink records a periodic sample of coaching state to durable
// storage, off the per-frame hot path.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// FrameMeta identifies which frame a recorded sample came from.
type FrameMeta struct {
	TimestampMS    int64                `json:"timestamp_ms"`
	ExerciseKey    landmark.ExerciseKey `json:"exercise_key"`
	Phase          string               `json:"phase"`
	ReferenceFrame int                  `json:"reference_frame"`
}

// Metrics carries the scalar coaching measurements worth keeping.
type Metrics struct {
	QualityScore  float64 `json:"quality_score"`
	Confidence    float64 `json:"confidence"`
	RMSDivergence float64 `json:"rms_divergence"`
	Rep           int     `json:"rep"`
}

// Feedback carries the top active correction or coaching message, if any.
type Feedback struct {
	Text     string `json:"text,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// record is the JSON-lines shape FileSink appends.
type record struct {
	Meta     FrameMeta            `json:"meta"`
	Metrics  Metrics              `json:"metrics"`
	Feedback Feedback             `json:"feedback"`
	Skeleton landmark.Normalized  `json:"skeleton"`
}

// Sink persists one coaching sample. Implementations must be safe for
// concurrent use; Record is called from the sampler's own goroutine, never
// from the engine's hot path.
type Sink interface {
	Record(ctx context.Context, meta FrameMeta, metrics Metrics, feedback Feedback, skeleton landmark.Normalized) error
	Close() error
}

// NopSink discards every sample. It is the default when no durable session
// log is configured.
type NopSink struct{}

func (NopSink) Record(context.Context, FrameMeta, Metrics, Feedback, landmark.Normalized) error {
	return nil
}

func (NopSink) Close() error { return nil }

// FileSink appends one JSON record per line to a file, teacher-style
// (open once, wrap every I/O error with enough context to find the file).
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileSink opens (creating if necessary) path for append.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: opening %s: %w", path, err)
	}
	return &FileSink{file: f, enc: json.NewEncoder(f)}, nil
}

func (s *FileSink) Record(_ context.Context, meta FrameMeta, metrics Metrics, feedback Feedback, skeleton landmark.Normalized) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := record{Meta: meta, Metrics: metrics, Feedback: feedback, Skeleton: skeleton}
	if err := s.enc.Encode(r); err != nil {
		return fmt.Errorf("sink: writing record: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("sink: closing file: %w", err)
	}
	return nil
}

package sink

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/ptcoach/ptcoach/pkg/landmark"
)

// sample is the latest coaching state handed to the scheduler on each tick.
type sample struct {
	meta     FrameMeta
	metrics  Metrics
	feedback Feedback
	skeleton landmark.Normalized
	valid    bool
}

// Sampler decouples Sink.Record from the per-frame hot path: Update is cheap
// (an in-memory copy under a mutex) and is safe to call from the engine
// goroutine every frame, while a gocron job drains the latest sample to the
// underlying Sink on a fixed interval.
type Sampler struct {
	sink Sink
	log  *zap.Logger

	mu     sync.Mutex
	latest sample

	scheduler gocron.Scheduler
	failedTick bool
}

// NewSampler wraps sink. A nil sink is treated as NopSink.
func NewSampler(sink Sink, log *zap.Logger) *Sampler {
	if sink == nil {
		sink = NopSink{}
	}
	return &Sampler{sink: sink, log: log}
}

// Update records the most recent coaching state. Cheap, non-blocking,
// called from the engine's own goroutine on every processed frame.
func (s *Sampler) Update(meta FrameMeta, metrics Metrics, feedback Feedback, skeleton landmark.Normalized) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = sample{meta: meta, metrics: metrics, feedback: feedback, skeleton: skeleton, valid: true}
}

// Start begins flushing the latest sample to the sink every interval,
// stopping when ctx is canceled or Stop is called.
func (s *Sampler) Start(ctx context.Context, interval time.Duration) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.flush(ctx) }),
	)
	if err != nil {
		return err
	}
	s.scheduler = scheduler
	scheduler.Start()

	go func() {
		<-ctx.Done()
		_ = scheduler.Shutdown()
	}()
	return nil
}

// Stop shuts the scheduler down and closes the underlying sink.
func (s *Sampler) Stop() error {
	if s.scheduler != nil {
		if err := s.scheduler.Shutdown(); err != nil {
			return err
		}
	}
	return s.sink.Close()
}

func (s *Sampler) flush(ctx context.Context) {
	s.mu.Lock()
	snap := s.latest
	s.mu.Unlock()
	if !snap.valid {
		return
	}

	if err := s.sink.Record(ctx, snap.meta, snap.metrics, snap.feedback, snap.skeleton); err != nil {
		if !s.failedTick {
			s.log.Warn("session sink write failed, suppressing further logs until next successful write",
				zap.Error(err))
			s.failedTick = true
		}
		return
	}
	s.failedTick = false
}

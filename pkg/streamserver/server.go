// Package streamserver fans a single pose-frame ingest stream out to many
// subscribers over WebSocket, running exactly one coach.Engine goroutine in
// between. Generalized from the teacher's Tracker (pkg/miface/tracker.go):
// one producer loop, a mutex-protected subscriber set, non-blocking
// broadcast sends that drop on a slow subscriber.
package streamserver

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ptcoach/ptcoach/pkg/coach"
	"github.com/ptcoach/ptcoach/pkg/landmark"
	"github.com/ptcoach/ptcoach/pkg/sink"
)

// QueueMode controls how the ingest reader behaves when the engine
// goroutine is still processing the previous frame.
type QueueMode int

const (
	// QueueDrop discards the new frame (default): the engine always works
	// on the freshest frame, never a backlog.
	QueueDrop QueueMode = iota
	// QueueDepthOne holds exactly one pending frame, overwriting it if a
	// newer one arrives before the engine drains it.
	QueueDepthOne
)

// Errors returned by Server lifecycle methods.
var (
	ErrAlreadyRunning = errors.New("streamserver: already running")
	ErrNotRunning     = errors.New("streamserver: not running")
)

// Config holds the tunables spec.md §5 calls out for the fan-out server.
type Config struct {
	IngestMaxFPS      float64
	QueueMode         QueueMode
	ReconnectDelay    time.Duration
	SubscriberBuffer  int
	HealthLogInterval time.Duration

	// Sink, if non-nil, receives a periodic sample of coaching state (see
	// pkg/sink). Left nil, no session log is kept. SinkSampleInterval is
	// the gocron tick period; it is ignored when Sink is nil.
	Sink               sink.Sink
	SinkSampleInterval time.Duration
}

// DefaultConfig returns conservative defaults: a 15fps ingest ceiling, drop
// queueing, a 1s reconnect delay, 16-frame subscriber buffers, a 30s health
// log cadence, and no session sink.
func DefaultConfig() Config {
	return Config{
		IngestMaxFPS:       15,
		QueueMode:          QueueDrop,
		ReconnectDelay:     1 * time.Second,
		SubscriberBuffer:   16,
		HealthLogInterval:  30 * time.Second,
		Sink:               sink.NopSink{},
		SinkSampleInterval: 5 * time.Second,
	}
}

// Server owns one coach.Engine and fans its output to any number of
// subscribers. Exactly one goroutine (run by Start) ever calls
// engine.Infer; callers feed frames through Ingest.
type Server struct {
	cfg    Config
	engine *coach.Engine
	log    *zap.Logger

	limiter *rate.Limiter

	mu          sync.Mutex
	subscribers map[uuid.UUID]chan []byte
	running     bool

	frameCh chan landmark.RawFrame

	sampler *sink.Sampler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	counters counters
}

type counters struct {
	mu         sync.Mutex
	ingested   uint64
	dropped    uint64
	throttled  uint64
	broadcast  uint64
	subDropped uint64
}

func (c *counters) snapshot() counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return counters{ingested: c.ingested, dropped: c.dropped, throttled: c.throttled, broadcast: c.broadcast, subDropped: c.subDropped}
}

// NewServer builds a Server around an already-constructed coach.Engine.
func NewServer(engine *coach.Engine, cfg Config, log *zap.Logger) *Server {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 16
	}
	return &Server{
		cfg:         cfg,
		engine:      engine,
		log:         log,
		limiter:     rate.NewLimiter(rate.Limit(cfg.IngestMaxFPS), 1),
		subscribers: make(map[uuid.UUID]chan []byte),
	}
}

// Start launches the engine-owning goroutine and the health monitor.
// Returns ErrAlreadyRunning if called twice without an intervening
// Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.frameCh = make(chan landmark.RawFrame, 1)

	if s.cfg.Sink != nil {
		if _, isNop := s.cfg.Sink.(sink.NopSink); !isNop {
			s.sampler = sink.NewSampler(s.cfg.Sink, s.log)
			interval := s.cfg.SinkSampleInterval
			if interval <= 0 {
				interval = 5 * time.Second
			}
			if err := s.sampler.Start(s.ctx, interval); err != nil {
				s.running = false
				s.cancel()
				s.mu.Unlock()
				return err
			}
		}
	}
	s.mu.Unlock()

	s.wg.Add(2)
	go s.engineLoop()
	go s.healthLoop()
	return nil
}

// Shutdown stops the engine loop and health monitor, and closes every
// subscriber channel.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	sampler := s.sampler
	s.sampler = nil
	s.mu.Unlock()

	if sampler != nil {
		if err := sampler.Stop(); err != nil {
			s.log.Warn("stopping session sink sampler", zap.Error(err))
		}
	}
	return nil
}

// Ingest submits one pose frame. If the rate limit is exceeded the frame is
// throttled (counted, dropped). If the engine is still busy with the prior
// frame, behavior follows Config.QueueMode.
func (s *Server) Ingest(frame landmark.RawFrame) {
	if !s.limiter.Allow() {
		s.counters.mu.Lock()
		s.counters.throttled++
		s.counters.mu.Unlock()
		return
	}

	s.counters.mu.Lock()
	s.counters.ingested++
	s.counters.mu.Unlock()

	switch s.cfg.QueueMode {
	case QueueDepthOne:
		select {
		case s.frameCh <- frame:
		default:
			select {
			case <-s.frameCh:
			default:
			}
			select {
			case s.frameCh <- frame:
			default:
			}
		}
	default:
		select {
		case s.frameCh <- frame:
		default:
			s.counters.mu.Lock()
			s.counters.dropped++
			s.counters.mu.Unlock()
		}
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. Callers must drain the channel: sends are non-blocking, and a
// broadcast that finds the channel full unsubscribes the caller and closes
// the channel.
func (s *Server) Subscribe() (uuid.UUID, <-chan []byte) {
	id := uuid.New()
	ch := make(chan []byte, s.cfg.SubscriberBuffer)
	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (s *Server) Unsubscribe(id uuid.UUID) {
	s.mu.Lock()
	ch, ok := s.subscribers[id]
	if ok {
		delete(s.subscribers, id)
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (s *Server) engineLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.frameCh:
			payload := s.engine.Infer(frame, time.Now().UnixMilli())
			s.broadcast(payload)
			if s.sampler != nil {
				s.sampler.Update(sinkMeta(payload), sinkMetrics(payload), sinkFeedback(payload), s.engine.LastSkeleton())
			}
		}
	}
}

func sinkMeta(p coach.Payload) sink.FrameMeta {
	return sink.FrameMeta{
		TimestampMS:    p.TimestampMS,
		ExerciseKey:    p.Exercise.Name,
		Phase:          string(p.Exercise.Phase),
		ReferenceFrame: p.Exercise.ReferenceFrame,
	}
}

func sinkMetrics(p coach.Payload) sink.Metrics {
	return sink.Metrics{
		QualityScore:  p.Quality.Score,
		Confidence:    p.Quality.Confidence,
		RMSDivergence: p.RMSDivergence,
		Rep:           p.Exercise.Rep,
	}
}

// sinkFeedback picks the most severe active correction or coaching message,
// if any, as the one line worth keeping in the session log.
func sinkFeedback(p coach.Payload) sink.Feedback {
	if len(p.Corrections) > 0 {
		top := p.Corrections[0]
		return sink.Feedback{Text: top.Text, Severity: string(top.Severity)}
	}
	if len(p.CoachingMessages) > 0 {
		return sink.Feedback{Text: p.CoachingMessages[0].Text}
	}
	return sink.Feedback{}
}

func (s *Server) broadcast(payload coach.Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshaling coaching payload", zap.Error(err))
		return
	}

	s.mu.Lock()
	targets := make(map[uuid.UUID]chan []byte, len(s.subscribers))
	for id, ch := range s.subscribers {
		targets[id] = ch
	}
	s.mu.Unlock()

	s.counters.mu.Lock()
	s.counters.broadcast++
	s.counters.mu.Unlock()

	for id, ch := range targets {
		select {
		case ch <- data:
		default:
			// Still full on this send: the subscriber is too slow to keep
			// up. Drop it rather than let it stall the broadcast loop.
			s.counters.mu.Lock()
			s.counters.subDropped++
			s.counters.mu.Unlock()
			s.Unsubscribe(id)
		}
	}
}

func (s *Server) healthLoop() {
	defer s.wg.Done()
	interval := s.cfg.HealthLogInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			c := s.counters.snapshot()
			s.mu.Lock()
			n := len(s.subscribers)
			s.mu.Unlock()
			s.log.Info("streamserver health",
				zap.Uint64("ingested", c.ingested),
				zap.Uint64("dropped", c.dropped),
				zap.Uint64("throttled", c.throttled),
				zap.Uint64("broadcast", c.broadcast),
				zap.Uint64("subscriber_drops", c.subDropped),
				zap.Int("subscribers", n),
			)
		}
	}
}

// Subscribers returns the current subscriber count, mostly for tests and
// diagnostics.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/feed"
	"github.com/opensource-finance/fraudshield/internal/metrics"
)

// Status reports the polling health of one view.
type Status struct {
	View                string    `json:"view"`
	State               State     `json:"state"`
	Interval            string    `json:"interval"`
	Limit               int       `json:"limit"`
	Polls               int       `json:"polls"`
	Failures            int       `json:"failures"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	AllFailed           bool      `json:"allFailed"`
	LastSuccess         time.Time `json:"lastSuccess,omitempty"`
	LastError           string    `json:"lastError,omitempty"`
}

// DefaultInterval replaces a non-positive view interval.
const DefaultInterval = 5 * time.Second

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// Synchronizer polls a Source on a fixed interval and keeps the latest
// successful snapshot for one view.
//
// Each loop runs its polls sequentially. Pause bumps the generation, so a
// fetch that was in flight when the view paused is discarded on return
// instead of being applied.
type Synchronizer struct {
	view   domain.ViewConfig
	source Source
	sink   Sink
	now    func() time.Time

	// pubMu orders sink publishes so an older snapshot never lands
	// after a newer one.
	pubMu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	started    bool
	state      State
	generation uint64
	stop       chan struct{}

	snapshot    *domain.FeedSnapshot
	polls       int
	successes   int
	failures    int
	consecutive int
	lastSuccess time.Time
	lastErr     string
}

// NewSynchronizer creates a synchronizer for view. sink may be nil.
// A non-positive interval is replaced by DefaultInterval.
func NewSynchronizer(view domain.ViewConfig, source Source, sink Sink, opts ...Option) *Synchronizer {
	if view.Interval <= 0 {
		slog.Warn("non-positive view interval, using default",
			"view", view.Name,
			"interval", view.Interval,
			"default", DefaultInterval,
		)
		view.Interval = DefaultInterval
	}
	s := &Synchronizer{
		view:   view,
		source: source,
		sink:   sink,
		now:    time.Now,
		state:  StateStreaming,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start polls immediately and then on every tick until ctx is done.
// It is a no-op after the first call or once disposed.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.state == StateDisposed {
		return
	}
	s.started = true
	s.ctx = ctx
	if s.state == StateStreaming {
		s.launch()
	}
}

// Pause stops the ticker. A poll already in flight is left to finish
// but its result is dropped.
func (s *Synchronizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return
	}
	s.state = StatePaused
	s.halt()
	slog.Info("view paused", "view", s.view.Name)
}

// Resume polls immediately and restarts the cadence.
func (s *Synchronizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return
	}
	s.state = StateStreaming
	if s.started {
		s.launch()
	}
	slog.Info("view resumed", "view", s.view.Name)
}

// Dispose stops the synchronizer for good.
func (s *Synchronizer) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisposed {
		return
	}
	if s.state == StateStreaming {
		s.halt()
	} else {
		s.generation++
	}
	s.state = StateDisposed
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the last applied snapshot, or nil before the first
// successful poll.
func (s *Synchronizer) Snapshot() *domain.FeedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// AllFailed reports whether at least one poll ran and none succeeded.
func (s *Synchronizer) AllFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls > 0 && s.successes == 0
}

// Status returns polling counters for the view.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		View:                s.view.Name,
		State:               s.state,
		Interval:            s.view.Interval.String(),
		Limit:               s.view.Limit,
		Polls:               s.polls,
		Failures:            s.failures,
		ConsecutiveFailures: s.consecutive,
		AllFailed:           s.polls > 0 && s.successes == 0,
		LastSuccess:         s.lastSuccess,
		LastError:           s.lastErr,
	}
}

// launch starts a loop for the current generation. Caller holds s.mu.
func (s *Synchronizer) launch() {
	s.stop = make(chan struct{})
	go s.loop(s.ctx, s.generation, s.stop)
}

// halt ends the running loop and invalidates its in-flight poll.
// Caller holds s.mu.
func (s *Synchronizer) halt() {
	s.generation++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Synchronizer) loop(ctx context.Context, gen uint64, stop <-chan struct{}) {
	s.poll(ctx, gen)

	ticker := time.NewTicker(s.view.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.poll(ctx, gen)
		}
	}
}

func (s *Synchronizer) poll(ctx context.Context, gen uint64) {
	txs, err := s.source.Fetch(ctx, s.view.Limit)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.generation != gen || s.state != StateStreaming {
		s.mu.Unlock()
		metrics.PollsTotal.WithLabelValues(s.view.Name, "discarded").Inc()
		slog.Debug("stale poll discarded", "view", s.view.Name)
		return
	}

	s.polls++
	if err != nil {
		s.failures++
		s.consecutive++
		s.lastErr = err.Error()
		consecutive := s.consecutive
		s.mu.Unlock()

		metrics.PollsTotal.WithLabelValues(s.view.Name, "failed").Inc()
		slog.Warn("feed poll failed",
			"view", s.view.Name,
			"consecutive_failures", consecutive,
			"error", err,
		)
		return
	}

	if txs == nil {
		txs = []domain.Transaction{}
	}
	snap := &domain.FeedSnapshot{
		View:         s.view.Name,
		Transactions: txs,
		Stats:        feed.Aggregate(txs),
		FetchedAt:    s.now().UTC(),
	}
	s.snapshot = snap
	s.successes++
	s.consecutive = 0
	s.lastSuccess = snap.FetchedAt
	s.lastErr = ""
	s.mu.Unlock()

	metrics.PollsTotal.WithLabelValues(s.view.Name, "applied").Inc()

	s.publish(ctx, snap)
}

// publish hands snap to the sink unless a newer snapshot has replaced it
// in the meantime.
func (s *Synchronizer) publish(ctx context.Context, snap *domain.FeedSnapshot) {
	if s.sink == nil {
		return
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	current := s.snapshot == snap
	s.mu.Unlock()
	if !current {
		slog.Debug("superseded snapshot not published", "view", s.view.Name)
		return
	}

	if err := s.sink.Publish(ctx, snap); err != nil {
		slog.Warn("snapshot publish failed", "view", s.view.Name, "error", err)
	}
}

var _ Task = (*Synchronizer)(nil)

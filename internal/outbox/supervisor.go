// Package outbox supervises outgoing messages that are waiting for the
// transport. Messages that stay queued for too long are failed so that the
// user can retry them.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/cipherlog/internal/bus"
	"github.com/matheus3301/cipherlog/internal/store"
	"go.uber.org/zap"
)

// Sweeper fails stale queued messages.
type Sweeper interface {
	SweepStaleQueued(ctx context.Context, now time.Time, staleAfter time.Duration) ([]store.MessageRef, error)
}

// Gate reports whether timers may fire.
type Gate interface {
	IsLive() bool
}

// SweepReport is the payload of bus.QueueSwept.
type SweepReport struct {
	Messages []store.MessageRef
}

// Supervisor periodically sweeps the queue while the store is live.
type Supervisor struct {
	sweeper    Sweeper
	gate       Gate
	bus        bus.Publisher
	logger     *zap.Logger
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Used when NewSupervisor is given a non-positive duration.
const (
	DefaultInterval   = 30 * time.Second
	DefaultStaleAfter = 10 * time.Minute
)

// NewSupervisor creates a supervisor. It does nothing until Start.
func NewSupervisor(s Sweeper, gate Gate, b bus.Publisher, interval, staleAfter time.Duration, logger *zap.Logger) *Supervisor {
	if b == nil {
		b = bus.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Supervisor{
		sweeper:    s,
		gate:       gate,
		bus:        b,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Start begins the sweep loop. Calling Start on a running supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop stops the loop and waits for an in-flight sweep to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.gate.IsLive() {
				continue
			}
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("queue sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce runs a single sweep and returns how many messages were failed.
func (s *Supervisor) SweepOnce(ctx context.Context) (int, error) {
	refs, err := s.sweeper.SweepStaleQueued(ctx, s.now(), s.staleAfter)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}
	s.logger.Info("queue swept", zap.Int("failed", len(refs)))
	s.bus.Publish(bus.Event{
		Kind:      bus.QueueSwept,
		Timestamp: s.now(),
		Payload:   SweepReport{Messages: refs},
	})
	return len(refs), nil
}

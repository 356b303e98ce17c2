// Package ticks publishes periodic timer snapshots while an attempt is in
// progress, so that overlays and other observers can follow the run without
// polling the control API.
package ticks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

// Tick is one published snapshot. Sequence restarts at 1 for every attempt.
type Tick struct {
	AttemptID string         `json:"attempt_id"`
	Sequence  uint64         `json:"sequence"`
	Snapshot  timer.Snapshot `json:"snapshot"`
}

// Loop samples the timer every interval. While an attempt is active every
// sample is published. When the attempt ends by reset one final NotRunning
// tick is published so consumers can close it out.
type Loop struct {
	shared    *timer.SharedTimer
	publisher Publisher
	clock     clockwork.Clock
	interval  time.Duration

	attemptID string
	// attempts is the run's attempt count when attemptID was issued.
	attempts int
	sequence uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLoop(shared *timer.SharedTimer, publisher Publisher, clock clockwork.Clock, interval time.Duration) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Loop{
		shared:    shared,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
	}
}

func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("ticks loop already running")
	}
	if l.interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", l.interval)
	}
	l.running = true

	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.run(ctx)

	log.Info().Dur("interval", l.interval).Msg("ticks loop started")
	return nil
}

func (l *Loop) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return fmt.Errorf("ticks loop not running")
	}
	l.running = false
	l.cancel()
	l.mu.Unlock()

	l.wg.Wait()
	log.Info().Msg("ticks loop stopped")
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := l.tick(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to publish tick")
			}
		}
	}
}

// tick samples the timer once and publishes the sample if an attempt is or
// just was active. Delivery is at most once: a failed publish is not
// retried, the next tick carries newer state anyway.
func (l *Loop) tick(ctx context.Context) error {
	snap := timer.ReadWith(l.shared, (*timer.Timer).Snapshot)

	if snap.Phase == models.TimerPhaseNotRunning {
		if l.attemptID == "" {
			return nil
		}
		t := l.next(snap)
		l.attemptID = ""
		return l.publisher.Publish(ctx, t)
	}

	// A reset and a new start can both fall between two samples; the attempt
	// count tells the attempts apart.
	if l.attemptID == "" || snap.AttemptCount != l.attempts {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate attempt id: %w", err)
		}
		l.attemptID = id.String()
		l.attempts = snap.AttemptCount
		l.sequence = 0
	}
	return l.publisher.Publish(ctx, l.next(snap))
}

func (l *Loop) next(snap timer.Snapshot) Tick {
	l.sequence++
	return Tick{AttemptID: l.attemptID, Sequence: l.sequence, Snapshot: snap}
}

package ticks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher delivers ticks to their consumers.
type Publisher interface {
	Publish(ctx context.Context, tick Tick) error
}

// StreamConfig shapes the stream ticks are kept in. Ticks are only useful
// while they are fresh, so the stream is small and kept in memory.
type StreamConfig struct {
	Name     string
	Prefix   string
	Retain   time.Duration
	PerPhase int64 // ticks kept per phase subject
	Replicas int
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:     "SPLITKEEPER_TICKS",
		Prefix:   "splitkeeper",
		Retain:   time.Hour,
		PerPhase: 1_000,
		Replicas: 1,
	}
}

func (c StreamConfig) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              c.Name,
		Description:       "Timer snapshots published while a run is active",
		Subjects:          []string{c.Prefix + ".ticks.>"},
		Retention:         jetstream.LimitsPolicy,
		Discard:           jetstream.DiscardOld,
		MaxAge:            c.Retain,
		MaxMsgsPerSubject: c.PerPhase,
		Storage:           jetstream.MemoryStorage,
		Replicas:          c.Replicas,
		Duplicates:        time.Minute,
	}
}

// JetStreamPublisher publishes ticks on <prefix>.ticks.<phase>, deduplicated
// by attempt and sequence.
type JetStreamPublisher struct {
	js     jetstream.JetStream
	stream StreamConfig
}

// NewJetStreamPublisher creates the tick stream, or brings an existing one
// in line with cfg.
func NewJetStreamPublisher(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (*JetStreamPublisher, error) {
	stream, err := js.CreateOrUpdateStream(ctx, cfg.streamConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up tick stream %s: %w", cfg.Name, err)
	}
	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Dur("retain", cfg.Retain).
		Msg("tick stream ready")
	return &JetStreamPublisher{js: js, stream: cfg}, nil
}

// Subject returns the subject a tick is published on.
func (p *JetStreamPublisher) Subject(tick Tick) string {
	return subject(p.stream.Prefix, tick)
}

func subject(prefix string, tick Tick) string {
	return prefix + ".ticks." + strings.ToLower(string(tick.Snapshot.Phase))
}

func msgID(tick Tick) string {
	return tick.AttemptID + "-" + strconv.FormatUint(tick.Sequence, 10)
}

func (p *JetStreamPublisher) Publish(ctx context.Context, tick Tick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("failed to encode tick: %w", err)
	}

	msg := nats.NewMsg(p.Subject(tick))
	msg.Data = data
	msg.Header.Set("Attempt-ID", tick.AttemptID)
	msg.Header.Set("Phase", string(tick.Snapshot.Phase))

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(msgID(tick)),
		jetstream.WithExpectStream(p.stream.Name),
	)
	if err != nil {
		return fmt.Errorf("failed to publish tick %d: %w", tick.Sequence, err)
	}
	if ack.Duplicate {
		log.Debug().Str("attempt_id", tick.AttemptID).Uint64("tick", tick.Sequence).Msg("duplicate tick")
	}
	return nil
}

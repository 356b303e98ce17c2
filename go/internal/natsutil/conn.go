// Package natsutil connects to NATS and opens the JetStream context shared
// by the replicated store and the ticks publisher.
package natsutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL           string
	Name          string
	ConnectWait   time.Duration
	ReconnectWait time.Duration
	DrainTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "splitkeeper",
		ConnectWait:   5 * time.Second,
		ReconnectWait: 2 * time.Second,
		DrainTimeout:  5 * time.Second,
	}
}

func (c Config) options() []nats.Option {
	return []nats.Option{
		nats.Name(c.Name),
		nats.Timeout(c.ConnectWait),
		// The timer keeps running offline; keep trying until it comes back.
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.ReconnectWait),
		nats.DrainTimeout(c.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("lost NATS, replicated writes will fail until it returns")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := log.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("NATS error")
		}),
	}
}

// Conn is a NATS connection together with its JetStream context.
type Conn struct {
	NC *nats.Conn
	JS jetstream.JetStream
}

// Dial connects to cfg.URL and opens JetStream on the connection.
func Dial(cfg Config) (*Conn, error) {
	nc, err := nats.Connect(cfg.URL, cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream: %w", err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Str("name", cfg.Name).Msg("connected to NATS")
	return &Conn{NC: nc, JS: js}, nil
}

// Close drains the connection so in-flight publishes are flushed, falling
// back to a hard close when draining is not possible.
func (c *Conn) Close() {
	if c == nil || c.NC == nil {
		return
	}
	if err := c.NC.Drain(); err != nil {
		if !errors.Is(err, nats.ErrConnectionClosed) {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
		c.NC.Close()
	}
}

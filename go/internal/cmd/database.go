package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/natsutil"
	"github.com/mcdev12/splitkeeper/go/internal/storage"
)

// Storage is the opened storage stack. Active is the replicated tier when
// NATS is configured and the local tier otherwise.
type Storage struct {
	Local  *storage.LocalStore
	Active storage.Tier
	NATS   *natsutil.Conn
}

func setupStorage(ctx context.Context, config *Config) (*Storage, error) {
	local, err := storage.OpenLocal(ctx, storage.LocalConfig{
		Driver: config.LocalDriver,
		DSN:    config.LocalDSN,
	}, storage.FileLegacyArea{Path: config.LegacyPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	log.Info().
		Str("driver", config.LocalDriver).
		Int("schema_version", local.Version()).
		Msg("opened local store")

	st := &Storage{Local: local, Active: local}
	if config.NATSURL == "" {
		return st, nil
	}

	natsConfig := natsutil.DefaultConfig()
	natsConfig.URL = config.NATSURL
	conn, err := natsutil.Dial(natsConfig)
	if err != nil {
		local.Close()
		return nil, err
	}
	st.NATS = conn

	buckets, err := storage.OpenJetStreamBuckets(ctx, conn.JS, storage.KVConfig{
		Prefix:   config.KVBucketPrefix,
		Replicas: config.KVReplicas,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	replicated := storage.NewRemoteStore(buckets)

	seeded, err := storage.Seed(ctx, local, replicated)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to seed replicated store: %w", err)
	}
	if seeded > 0 {
		log.Info().Int("runs", seeded).Msg("seeded replicated store from local store")
	}

	st.Active = replicated
	return st, nil
}

func (s *Storage) Close() {
	s.NATS.Close()
	if err := s.Local.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close local store")
	}
}

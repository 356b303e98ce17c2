package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/clients/splitsio"
	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/notify"
	"github.com/mcdev12/splitkeeper/go/internal/remote"
	"github.com/mcdev12/splitkeeper/go/internal/session"
	"github.com/mcdev12/splitkeeper/go/internal/storage"
	"github.com/mcdev12/splitkeeper/go/internal/ticks"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

type Services struct {
	Storage  *Storage
	Store    *storage.Service
	Queue    *storage.WriteQueue
	Notifier *notify.Recorder
	Timer    *timer.SharedTimer
	Remote   *remote.Client
	SplitsIO *splitsio.SplitsIOClient
	Session  *session.Session
	Ticks    *ticks.Loop
}

func setupServices(ctx context.Context, config *Config, st *Storage) (*Services, error) {
	// Wire up dependency injection chain
	// Storage tier → Service → Write queue → Timer → Session

	notifier := notify.NewRecorder(notify.LogNotifier{})
	store := storage.NewService(st.Active)

	// The queue outlives cancellation so pending writes drain on shutdown.
	queue := storage.NewWriteQueue(notifier, storage.DefaultQueueConfig())
	if err := queue.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	t, err := timer.New(models.DefaultRun(), clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create timer: %w", err)
	}
	shared := timer.NewShared(t)

	remoteClient := remote.NewClient(shared, notifier, remote.DefaultConfig())
	splitsIOClient := splitsio.NewSplitsIOClient(config.SplitsIOURL)

	sess, err := session.New(ctx, session.Deps{
		Timer:    shared,
		Store:    store,
		Queue:    queue,
		Notifier: notifier,
		SplitsIO: splitsIOClient,
		Remote:   remoteClient,
	})
	if err != nil {
		_ = queue.Stop()
		return nil, err
	}

	services := &Services{
		Storage:  st,
		Store:    store,
		Queue:    queue,
		Notifier: notifier,
		Timer:    shared,
		Remote:   remoteClient,
		SplitsIO: splitsIOClient,
		Session:  sess,
	}

	if st.NATS != nil && config.TickIntervalMS > 0 {
		streamConfig := ticks.DefaultStreamConfig()
		streamConfig.Name = config.TicksStream
		streamConfig.Prefix = config.KVBucketPrefix
		streamConfig.Replicas = config.KVReplicas
		publisher, err := ticks.NewJetStreamPublisher(ctx, st.NATS.JS, streamConfig)
		if err != nil {
			log.Warn().Err(err).Msg("tick publishing disabled")
		} else {
			services.Ticks = ticks.NewLoop(shared, publisher, clock, config.TickInterval())
		}
	}

	return services, nil
}

// Close stops the background workers. Pending storage writes are flushed
// before the storage stack is closed.
func (s *Services) Close() {
	if s.Ticks != nil {
		if err := s.Ticks.Stop(); err != nil {
			log.Debug().Err(err).Msg("ticks loop")
		}
	}
	s.Remote.Close()
	if err := s.Queue.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop write queue")
	}
	s.Storage.Close()
}

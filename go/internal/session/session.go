// Package session is the application shell around the timer. It owns the
// current run's storage key, the layout and the open editors, and turns
// user actions into timer operations and queued storage writes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/layout"
	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/notify"
	"github.com/mcdev12/splitkeeper/go/internal/remote"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
	"github.com/mcdev12/splitkeeper/go/internal/storage"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

// User-facing messages.
const (
	MsgCouldNotParseSplits = "Couldn't parse the splits."
	MsgEmptySplits         = "Empty Splits are not supported."
	MsgTimerRunning        = "You can't edit your run while the timer is running."
	MsgLayoutInvalid       = "Error loading Layout. This may not be a LiveSplit One Layout."
	MsgDownloadFailed      = "Failed to download the splits."
	MsgDownloadInvalid     = "The downloaded splits are not valid."
	MsgUploadFailed        = "Failed to upload the splits."
	MsgSaveSplitsFailed    = "Failed to save the splits."
	MsgSaveLayoutFailed    = "Failed to save the layout."
	MsgSaveSettingsFailed  = "Failed to save the settings."
)

var (
	ErrEmptySplits   = errors.New("splits have no segments")
	ErrTimerRunning  = errors.New("timer is running")
	ErrEditorOpen    = errors.New("an editor is already open")
	ErrNoEditor      = errors.New("no editor is open")
	ErrUnavailable   = errors.New("not configured")
	ErrSplitsMissing = errors.New("splits not found")
)

// SplitsIO is what the session needs from the splits.io client.
type SplitsIO interface {
	UploadLss(ctx context.Context, lss []byte) (string, error)
	DownloadByID(ctx context.Context, id string) (*models.Run, error)
}

// Remote is the control socket connection.
type Remote interface {
	ConnectOrDisconnect(ctx context.Context, url string) error
	State() remote.State
}

type Deps struct {
	Timer    *timer.SharedTimer
	Store    *storage.Service
	Queue    *storage.WriteQueue
	Notifier notify.Notifier
	SplitsIO SplitsIO
	Remote   Remote
}

type Session struct {
	shared   *timer.SharedTimer
	store    *storage.Service
	queue    *storage.WriteQueue
	notifier notify.Notifier
	splitsIO SplitsIO
	remote   Remote

	mu           sync.Mutex
	splitsKey    string
	layout       *layout.Layout
	layoutWidth  int
	runEditor    *RunEditor
	layoutEditor *layout.Editor
}

// New builds a session and loads the stored run, layout and layout width.
// Anything that cannot be loaded falls back to its default.
func New(ctx context.Context, deps Deps) (*Session, error) {
	if deps.Timer == nil || deps.Store == nil || deps.Queue == nil {
		return nil, fmt.Errorf("session needs a timer, a store and a write queue")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	s := &Session{
		shared:      deps.Timer,
		store:       deps.Store,
		queue:       deps.Queue,
		notifier:    notifier,
		splitsIO:    deps.SplitsIO,
		remote:      deps.Remote,
		layout:      layout.Default(),
		layoutWidth: storage.DefaultLayoutWidth,
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) load(ctx context.Context) error {
	key, err := s.store.LoadSplitsKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to load splits key: %w", err)
	}
	if key != "" {
		if err := s.openStored(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("could not restore the last splits")
		}
	}

	raw, err := s.store.LoadLayout(ctx)
	if err != nil {
		return fmt.Errorf("failed to load layout: %w", err)
	}
	if raw != nil {
		if l, err := layout.Parse(raw); err != nil {
			log.Warn().Err(err).Msg("ignoring stored layout")
		} else {
			s.layout = l
		}
	}

	width, err := s.store.LoadLayoutWidth(ctx)
	if err != nil {
		return fmt.Errorf("failed to load layout width: %w", err)
	}
	s.layoutWidth = width

	log.Info().Str("splits_key", s.SplitsKey()).Int("layout_width", width).Msg("session loaded")
	return nil
}

// openStored loads the run stored under key into the timer.
func (s *Session) openStored(ctx context.Context, key string) error {
	blob, err := s.store.LoadSplits(ctx, key)
	if err != nil {
		return err
	}
	if blob == nil {
		return fmt.Errorf("%w: %s", ErrSplitsMissing, key)
	}
	result := runcodec.Parse(blob, key, false)
	if !result.ParsedSuccessfully() {
		return result.Err()
	}
	if err := s.setRun(result.Unwrap()); err != nil {
		return err
	}
	s.mu.Lock()
	s.splitsKey = key
	s.mu.Unlock()
	return nil
}

// setRun hands run to the timer.
func (s *Session) setRun(run *models.Run) error {
	if run.Len() == 0 {
		return ErrEmptySplits
	}
	if rejected := timer.WriteWith(s.shared, func(t *timer.Timer) *models.Run { return t.SetRun(run) }); rejected != nil {
		return ErrTimerRunning
	}
	return nil
}

// Timer returns the shared timer.
func (s *Session) Timer() *timer.SharedTimer {
	return s.shared
}

// SplitsKey returns the storage key of the current run. It is empty until
// the run is saved for the first time.
func (s *Session) SplitsKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.splitsKey
}

// ImportSplits replaces the current run with a parsed splits file. The
// imported run is saved under a new key.
func (s *Session) ImportSplits(data []byte) error {
	result := runcodec.Parse(data, "", false)
	if !result.ParsedSuccessfully() {
		s.notifier.Error(MsgCouldNotParseSplits, result.Err())
		return result.Err()
	}
	if err := s.setRun(result.Unwrap()); err != nil {
		if errors.Is(err, ErrEmptySplits) {
			s.notifier.Error(MsgEmptySplits, err)
		} else {
			s.notifier.Error(MsgTimerRunning, err)
		}
		return err
	}
	s.mu.Lock()
	s.splitsKey = ""
	s.mu.Unlock()
	return nil
}

// ExportSplits encodes the current run and names the file after it.
func (s *Session) ExportSplits() (name string, data []byte, err error) {
	s.shared.Read(func(t *timer.Timer) {
		name = t.Run().ExtendedFileName(true) + ".lss"
		data, err = runcodec.SaveAsBytes(t.Run())
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode splits: %w", err)
	}
	return name, data, nil
}

// SaveSplits queues a write of the current run and returns the key it will
// be stored under. The run is encoded right away, so later timer changes do
// not leak into this save.
func (s *Session) SaveSplits() (string, error) {
	var (
		run  *models.Run
		blob []byte
		err  error
	)
	s.shared.Read(func(t *timer.Timer) {
		run = t.CloneRun()
		blob, err = runcodec.SaveAsBytes(t.Run())
	})
	if err != nil {
		s.notifier.Error(MsgSaveSplitsFailed, err)
		return "", fmt.Errorf("failed to encode splits: %w", err)
	}

	s.mu.Lock()
	if s.splitsKey == "" {
		id, err := uuid.NewV7()
		if err != nil {
			s.mu.Unlock()
			return "", fmt.Errorf("failed to generate splits key: %w", err)
		}
		s.splitsKey = id.String()
	}
	key := s.splitsKey
	s.mu.Unlock()

	s.queue.Enqueue(storage.Job{
		Name:    "save splits " + key,
		Failure: MsgSaveSplitsFailed,
		Run: func(ctx context.Context) error {
			if _, err := s.store.StoreSplits(ctx, func(emit storage.EmitFunc) { emit(run, blob) }, key); err != nil {
				return err
			}
			return s.store.StoreSplitsKey(ctx, key)
		},
	})
	return key, nil
}

// LoadSplits opens a stored run and makes it the current one.
func (s *Session) LoadSplits(ctx context.Context, key string) error {
	if err := s.openStored(ctx, key); err != nil {
		return err
	}
	s.queue.Enqueue(storage.Job{
		Name:    "save splits key",
		Failure: MsgSaveSettingsFailed,
		Run: func(ctx context.Context) error {
			return s.store.StoreSplitsKey(ctx, key)
		},
	})
	return nil
}

// Execute applies one control command line to the timer.
func (s *Session) Execute(line string) bool {
	return remote.Dispatch(s.shared, line)
}

func (s *Session) Start()              { s.shared.Write((*timer.Timer).Start) }
func (s *Session) Split()              { s.shared.Write((*timer.Timer).Split) }
func (s *Session) SplitOrStart()       { s.shared.Write((*timer.Timer).SplitOrStart) }
func (s *Session) SkipSplit()          { s.shared.Write((*timer.Timer).SkipSplit) }
func (s *Session) UndoSplit()          { s.shared.Write((*timer.Timer).UndoSplit) }
func (s *Session) TogglePauseOrStart() { s.shared.Write((*timer.Timer).TogglePauseOrStart) }

func (s *Session) Reset(updateSplits bool) {
	s.shared.Write(func(t *timer.Timer) { t.Reset(updateSplits) })
}

func (s *Session) SwitchToPreviousComparison() {
	s.shared.Write((*timer.Timer).SwitchToPreviousComparison)
}

func (s *Session) SwitchToNextComparison() {
	s.shared.Write((*timer.Timer).SwitchToNextComparison)
}

func (s *Session) SetCurrentTimingMethod(method models.TimingMethod) {
	s.shared.Write(func(t *timer.Timer) { t.SetCurrentTimingMethod(method) })
}

// ConnectToServerOrDisconnect toggles the control socket.
func (s *Session) ConnectToServerOrDisconnect(ctx context.Context, url string) error {
	if s.remote == nil {
		return fmt.Errorf("remote control: %w", ErrUnavailable)
	}
	return s.remote.ConnectOrDisconnect(ctx, url)
}

// OpenFromSplitsIO downloads a run by id or URL and makes it the current
// one.
func (s *Session) OpenFromSplitsIO(ctx context.Context, id string) error {
	if s.splitsIO == nil {
		return fmt.Errorf("splits.io: %w", ErrUnavailable)
	}
	run, err := s.splitsIO.DownloadByID(ctx, id)
	if err != nil {
		s.notifier.Error(MsgDownloadFailed, err)
		return err
	}
	if err := s.setRun(run); err != nil {
		s.notifier.Error(MsgDownloadInvalid, err)
		return err
	}
	s.mu.Lock()
	s.splitsKey = ""
	s.mu.Unlock()
	return nil
}

// UploadToSplitsIO uploads the current run and returns the URI that
// claims it.
func (s *Session) UploadToSplitsIO(ctx context.Context) (string, error) {
	if s.splitsIO == nil {
		return "", fmt.Errorf("splits.io: %w", ErrUnavailable)
	}
	_, lss, err := s.ExportSplits()
	if err != nil {
		s.notifier.Error(MsgUploadFailed, err)
		return "", err
	}
	claim, err := s.splitsIO.UploadLss(ctx, lss)
	if err != nil {
		s.notifier.Error(MsgUploadFailed, err)
		return "", err
	}
	return claim, nil
}

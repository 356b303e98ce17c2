package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
	"github.com/mcdev12/splitkeeper/go/internal/splits"
)

// EmitFunc hands one run and its canonical blob to StoreSplits. Both are
// only read during the call. The stored summary is extracted from blob.
type EmitFunc func(run *models.Run, blob []byte)

// Producer supplies the run to store by calling emit exactly once before
// returning.
type Producer func(emit EmitFunc)

// Service is the storage API used by the rest of the program. All
// operations go to a single tier.
type Service struct {
	tier   Tier
	newKey func() (string, error)
}

func NewService(tier Tier) *Service {
	return &Service{tier: tier, newKey: newKey}
}

// newKey returns a time ordered opaque key.
func newKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return id.String(), nil
}

// Tier returns the active tier.
func (s *Service) Tier() Tier {
	return s.tier
}

// StoreSplits stores the pair supplied by producer under key, or under a new
// key when key is empty, and returns the key. The producer runs before any
// I/O starts, so it may be called while holding the timer lock.
func (s *Service) StoreSplits(ctx context.Context, producer Producer, key string) (string, error) {
	var (
		blob    []byte
		info    splits.Info
		emitted int
	)
	producer(func(_ *models.Run, b []byte) {
		emitted++
		blob = bytes.Clone(b)
		// The summary describes what gets stored, which is the encoded run
		// at codec precision rather than the in-memory one.
		var ok bool
		if info, ok = splits.ParseAndExtract(blob); !ok {
			panic("storage: emitted blob does not parse")
		}
	})
	if emitted != 1 {
		panic(fmt.Sprintf("storage: producer emitted %d runs, want exactly one", emitted))
	}

	if key == "" {
		var err error
		if key, err = s.newKey(); err != nil {
			return "", err
		}
	}
	if err := s.tier.PutSplits(ctx, key, blob, info); err != nil {
		return "", err
	}
	log.Debug().Str("key", key).Str("game", info.Game).Str("category", info.Category).Msg("stored splits")
	return key, nil
}

// StoreRun encodes run and stores it. The run is only read.
func (s *Service) StoreRun(ctx context.Context, run *models.Run, key string) (string, error) {
	blob, err := runcodec.SaveAsBytes(run)
	if err != nil {
		return "", fmt.Errorf("failed to encode run: %w", err)
	}
	return s.StoreSplits(ctx, func(emit EmitFunc) { emit(run, blob) }, key)
}

// GetSplitsInfos returns the summary of every stored run. Runs whose summary
// is missing get it recomputed and written back. Summaries without a run are
// left out.
func (s *Service) GetSplitsInfos(ctx context.Context) ([]splits.KeyedInfo, error) {
	keys, err := s.tier.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := s.tier.ListInfos(ctx)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]splits.Info, len(infos))
	for _, ki := range infos {
		byKey[ki.Key] = ki.Info
	}

	out := make([]splits.KeyedInfo, 0, len(keys))
	for _, key := range keys {
		info, ok := byKey[key]
		if !ok {
			blob, err := s.tier.GetSplits(ctx, key)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if info, ok = s.repairInfo(ctx, key, blob); !ok {
				continue
			}
		}
		out = append(out, splits.KeyedInfo{Key: key, Info: info})
	}
	return out, nil
}

// LoadSplits returns the blob stored under key, or nil when there is none.
// A summary that does not match the blob is rewritten.
func (s *Service) LoadSplits(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.tier.GetSplits(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stored, err := s.tier.GetInfo(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		s.repairInfo(ctx, key, blob)
	case err != nil:
		log.Warn().Err(err).Str("key", key).Msg("failed to read splits info")
	default:
		if computed, ok := splits.ParseAndExtract(blob); ok && !computed.Equal(stored) {
			s.repairInfo(ctx, key, blob)
		}
	}
	return blob, nil
}

func (s *Service) repairInfo(ctx context.Context, key string, blob []byte) (splits.Info, bool) {
	info, ok := splits.ParseAndExtract(blob)
	if !ok {
		log.Warn().Str("key", key).Msg("stored splits do not parse")
		return splits.Info{}, false
	}
	if err := s.tier.PutInfo(ctx, key, info); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to repair splits info")
	} else {
		log.Info().Str("key", key).Msg("repaired splits info")
	}
	return info, true
}

// DeleteSplits removes the pair stored under key.
func (s *Service) DeleteSplits(ctx context.Context, key string) error {
	if _, err := s.tier.GetSplits(ctx, key); err != nil {
		return err
	}
	return s.tier.DeleteSplits(ctx, key)
}

// CopySplits duplicates the pair stored under key and returns the new key.
func (s *Service) CopySplits(ctx context.Context, key string) (string, error) {
	to, err := s.newKey()
	if err != nil {
		return "", err
	}
	if err := s.tier.CopySplits(ctx, key, to); err != nil {
		return "", err
	}
	return to, nil
}

func (s *Service) storeJSON(ctx context.Context, name Setting, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return s.tier.PutSetting(ctx, name, data)
}

func (s *Service) loadRaw(ctx context.Context, name Setting) (json.RawMessage, error) {
	data, err := s.tier.GetSetting(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// StoreLayout stores the layout settings document.
func (s *Service) StoreLayout(ctx context.Context, layout json.RawMessage) error {
	return s.storeJSON(ctx, SettingLayout, layout)
}

// LoadLayout returns the layout settings document, or nil when none is stored.
func (s *Service) LoadLayout(ctx context.Context) (json.RawMessage, error) {
	return s.loadRaw(ctx, SettingLayout)
}

// StoreHotkeys stores the hotkey configuration document.
func (s *Service) StoreHotkeys(ctx context.Context, hotkeys json.RawMessage) error {
	return s.storeJSON(ctx, SettingHotkeys, hotkeys)
}

// LoadHotkeys returns the hotkey configuration document, or nil when none is stored.
func (s *Service) LoadHotkeys(ctx context.Context) (json.RawMessage, error) {
	return s.loadRaw(ctx, SettingHotkeys)
}

func (s *Service) StoreLayoutWidth(ctx context.Context, width int) error {
	return s.storeJSON(ctx, SettingLayoutWidth, width)
}

// LoadLayoutWidth returns the stored layout width or DefaultLayoutWidth.
func (s *Service) LoadLayoutWidth(ctx context.Context) (int, error) {
	raw, err := s.loadRaw(ctx, SettingLayoutWidth)
	if err != nil || raw == nil {
		return DefaultLayoutWidth, err
	}
	var width float64
	if err := json.Unmarshal(raw, &width); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed layout width")
		return DefaultLayoutWidth, nil
	}
	return int(math.Round(width)), nil
}

func (s *Service) StoreSplitsKey(ctx context.Context, key string) error {
	return s.storeJSON(ctx, SettingSplitsKey, key)
}

// LoadSplitsKey returns the key of the current run, or "" when none is
// stored. Older stores kept the key as a number.
func (s *Service) LoadSplitsKey(ctx context.Context) (string, error) {
	raw, err := s.loadRaw(ctx, SettingSplitsKey)
	if err != nil || raw == nil {
		return "", err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed splits key")
		return "", nil
	}
	switch key := v.(type) {
	case string:
		return key, nil
	case float64:
		return strconv.FormatFloat(key, 'f', -1, 64), nil
	default:
		return "", nil
	}
}

// Seed copies every pair and setting from one tier into another that holds
// no runs yet, and returns the number of runs copied. A tier that already
// holds runs is left alone.
func Seed(ctx context.Context, from, to Tier) (int, error) {
	existing, err := to.ListKeys(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	keys, err := from.ListKeys(ctx)
	if err != nil {
		return 0, err
	}
	copied := 0
	for _, key := range keys {
		blob, err := from.GetSplits(ctx, key)
		if err != nil {
			return copied, err
		}
		info, err := from.GetInfo(ctx, key)
		if err != nil {
			var ok bool
			if info, ok = splits.ParseAndExtract(blob); !ok {
				log.Warn().Str("key", key).Msg("not seeding splits that do not parse")
				continue
			}
		}
		if err := to.PutSplits(ctx, key, blob, info); err != nil {
			return copied, err
		}
		copied++
	}

	for _, name := range Settings {
		value, err := from.GetSetting(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return copied, err
		}
		if err := to.PutSetting(ctx, name, value); err != nil {
			return copied, err
		}
	}

	log.Info().Int("splits", copied).Msg("seeded replicated store")
	return copied, nil
}

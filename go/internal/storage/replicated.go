package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/splits"
)

// RemoteStore is the replicated tier. The buckets have no cross-key
// transactions, so a pair is written blob first and summary second, and
// deleted summary first and blob second. A reader can therefore see a blob
// without its summary but never a summary whose blob was never written.
// Service repairs the gap when it notices it.
type RemoteStore struct {
	buckets Buckets
}

var _ Tier = (*RemoteStore)(nil)

func NewRemoteStore(buckets Buckets) *RemoteStore {
	return &RemoteStore{buckets: buckets}
}

func (s *RemoteStore) PutSplits(ctx context.Context, key string, blob []byte, info splits.Info) error {
	if err := s.buckets.Data.Put(ctx, key, blob); err != nil {
		return fmt.Errorf("failed to write splits %s: %w", key, err)
	}
	return s.PutInfo(ctx, key, info)
}

func (s *RemoteStore) GetSplits(ctx context.Context, key string) ([]byte, error) {
	return s.buckets.Data.Get(ctx, key)
}

func (s *RemoteStore) GetInfo(ctx context.Context, key string) (splits.Info, error) {
	data, err := s.buckets.Info.Get(ctx, key)
	if err != nil {
		return splits.Info{}, err
	}
	var info splits.Info
	if err := json.Unmarshal(data, &info); err != nil {
		return splits.Info{}, fmt.Errorf("failed to decode splits info %s: %w", key, err)
	}
	return info, nil
}

func (s *RemoteStore) PutInfo(ctx context.Context, key string, info splits.Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode splits info %s: %w", key, err)
	}
	if err := s.buckets.Info.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write splits info %s: %w", key, err)
	}
	return nil
}

func (s *RemoteStore) ListInfos(ctx context.Context) ([]splits.KeyedInfo, error) {
	keys, err := s.buckets.Info.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits info: %w", err)
	}
	out := make([]splits.KeyedInfo, 0, len(keys))
	for _, key := range keys {
		info, err := s.GetInfo(ctx, key)
		if errors.Is(err, ErrNotFound) {
			// Deleted between listing and reading.
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping unreadable splits info")
			continue
		}
		out = append(out, splits.KeyedInfo{Key: key, Info: info})
	}
	return out, nil
}

func (s *RemoteStore) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.buckets.Data.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits: %w", err)
	}
	return keys, nil
}

func (s *RemoteStore) DeleteSplits(ctx context.Context, key string) error {
	if err := s.buckets.Info.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete splits info %s: %w", key, err)
	}
	if err := s.buckets.Data.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete splits %s: %w", key, err)
	}
	return nil
}

func (s *RemoteStore) CopySplits(ctx context.Context, from, to string) error {
	blob, err := s.GetSplits(ctx, from)
	if err != nil {
		return err
	}
	info, err := s.GetInfo(ctx, from)
	if errors.Is(err, ErrNotFound) {
		var ok bool
		if info, ok = splits.ParseAndExtract(blob); !ok {
			return fmt.Errorf("splits %s: %w", from, ErrNotFound)
		}
	} else if err != nil {
		return err
	}
	return s.PutSplits(ctx, to, blob, info)
}

func (s *RemoteStore) PutSetting(ctx context.Context, name Setting, value []byte) error {
	if err := s.buckets.Settings.Put(ctx, string(name), value); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", name, err)
	}
	return nil
}

func (s *RemoteStore) GetSetting(ctx context.Context, name Setting) ([]byte, error) {
	return s.buckets.Settings.Get(ctx, string(name))
}

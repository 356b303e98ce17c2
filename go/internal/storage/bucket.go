package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Bucket is a flat key/value collection of the replicated tier.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Buckets are the three collections of the replicated tier.
type Buckets struct {
	Data     Bucket
	Info     Bucket
	Settings Bucket
}

// KVConfig names and sizes the JetStream key/value buckets.
type KVConfig struct {
	Prefix   string
	Replicas int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{Prefix: "splitkeeper", Replicas: 1}
}

// OpenJetStreamBuckets creates or updates the buckets <prefix>_splitsData,
// <prefix>_splitsInfo and <prefix>_settings.
func OpenJetStreamBuckets(ctx context.Context, js jetstream.JetStream, cfg KVConfig) (Buckets, error) {
	open := func(name, description string) (Bucket, error) {
		bucket := fmt.Sprintf("%s_%s", cfg.Prefix, name)
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: description,
			History:     1,
			Storage:     jetstream.FileStorage,
			Replicas:    cfg.Replicas,
		})
		if err != nil {
			return nil, fmt.Errorf("create key value bucket %s: %w", bucket, err)
		}
		log.Info().Str("bucket", bucket).Msg("opened JetStream key value bucket")
		return &jetStreamBucket{kv: kv}, nil
	}

	var (
		b   Buckets
		err error
	)
	if b.Data, err = open("splitsData", "Canonical run blobs"); err != nil {
		return Buckets{}, err
	}
	if b.Info, err = open("splitsInfo", "Run summaries"); err != nil {
		return Buckets{}, err
	}
	if b.Settings, err = open("settings", "Layout, hotkeys and current splits"); err != nil {
		return Buckets{}, err
	}
	return b, nil
}

type jetStreamBucket struct {
	kv jetstream.KeyValue
}

func (b *jetStreamBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, fmt.Errorf("%s/%s: %w", b.kv.Bucket(), key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", b.kv.Bucket(), key, err)
	}
	return entry.Value(), nil
}

func (b *jetStreamBucket) Put(ctx context.Context, key string, value []byte) error {
	if _, err := b.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("put %s/%s: %w", b.kv.Bucket(), key, err)
	}
	return nil
}

func (b *jetStreamBucket) Delete(ctx context.Context, key string) error {
	err := b.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete %s/%s: %w", b.kv.Bucket(), key, err)
	}
	return nil
}

func (b *jetStreamBucket) Keys(ctx context.Context) ([]string, error) {
	lister, err := b.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", b.kv.Bucket(), err)
	}
	defer lister.Stop()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// MemoryBucket is an in-process Bucket.
type MemoryBucket struct {
	mu     sync.Mutex
	values map[string][]byte
	// puts counts successful writes per key.
	puts map[string]int
}

func NewMemoryBucket() *MemoryBucket {
	return &MemoryBucket{values: map[string][]byte{}, puts: map[string]int{}}
}

// NewMemoryBuckets returns a set of empty in-process buckets.
func NewMemoryBuckets() Buckets {
	return Buckets{Data: NewMemoryBucket(), Info: NewMemoryBucket(), Settings: NewMemoryBucket()}
}

func (b *MemoryBucket) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return bytes.Clone(v), nil
}

func (b *MemoryBucket) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = bytes.Clone(value)
	b.puts[key]++
	return nil
}

func (b *MemoryBucket) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
	return nil
}

func (b *MemoryBucket) Keys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedKeys(b.values), nil
}

// Puts returns how many times key was written.
func (b *MemoryBucket) Puts(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts[key]
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

func testRun(game, category string, pbSeconds float64) *models.Run {
	run := models.NewRun()
	run.GameName = game
	run.CategoryName = category
	run.PushSegment(models.NewSegment("Start"))
	last := models.NewSegment("End")
	last.PersonalBestSplitTime = models.Time{RealTime: timespan.FromSeconds(pbSeconds).Ptr()}
	run.PushSegment(last)
	return run
}

func testBlob(t *testing.T, game, category string, pbSeconds float64) []byte {
	t.Helper()
	blob, err := runcodec.SaveAsBytes(testRun(game, category, pbSeconds))
	require.NoError(t, err)
	return blob
}

func openMemoryStore(t *testing.T, legacy LegacyArea) *LocalStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewLocalStore(context.Background(), db, "sqlite", legacy)
	require.NoError(t, err)
	return store
}

type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

// loggingBucket records writes and can be told to fail them.
type loggingBucket struct {
	Bucket
	name    string
	log     *opLog
	failPut bool
}

var errBucketDown = errors.New("bucket unavailable")

func (b *loggingBucket) Put(ctx context.Context, key string, value []byte) error {
	if b.failPut {
		return errBucketDown
	}
	b.log.add("put " + b.name + "/" + key)
	return b.Bucket.Put(ctx, key, value)
}

func (b *loggingBucket) Delete(ctx context.Context, key string) error {
	b.log.add("delete " + b.name + "/" + key)
	return b.Bucket.Delete(ctx, key)
}

func loggingBuckets() (Buckets, *opLog, *loggingBucket) {
	l := &opLog{}
	info := &loggingBucket{Bucket: NewMemoryBucket(), name: "splitsInfo", log: l}
	return Buckets{
		Data:     &loggingBucket{Bucket: NewMemoryBucket(), name: "splitsData", log: l},
		Info:     info,
		Settings: &loggingBucket{Bucket: NewMemoryBucket(), name: "settings", log: l},
	}, l, info
}

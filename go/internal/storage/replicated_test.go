package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/splitkeeper/go/internal/splits"
)

func TestRemoteStoreWriteOrder(t *testing.T) {
	ctx := context.Background()
	buckets, log, _ := loggingBuckets()
	store := NewRemoteStore(buckets)

	blob := testBlob(t, "Celeste", "Any%", 1650)
	info, _ := splits.ParseAndExtract(blob)
	require.NoError(t, store.PutSplits(ctx, "k", blob, info))
	require.NoError(t, store.DeleteSplits(ctx, "k"))

	assert.Equal(t, []string{
		"put splitsData/k",
		"put splitsInfo/k",
		"delete splitsInfo/k",
		"delete splitsData/k",
	}, log.all())
}

func TestRemoteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore(NewMemoryBuckets())

	blob := testBlob(t, "Celeste", "Any%", 1650)
	info, _ := splits.ParseAndExtract(blob)
	require.NoError(t, store.PutSplits(ctx, "k", blob, info))

	got, err := store.GetSplits(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	gotInfo, err := store.GetInfo(ctx, "k")
	require.NoError(t, err)
	assert.True(t, info.Equal(gotInfo))

	require.NoError(t, store.CopySplits(ctx, "k", "copy"))
	infos, err := store.ListInfos(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "copy", infos[0].Key)

	require.NoError(t, store.PutSetting(ctx, SettingSplitsKey, []byte(`"k"`)))
	value, err := store.GetSetting(ctx, SettingSplitsKey)
	require.NoError(t, err)
	assert.Equal(t, `"k"`, string(value))

	_, err = store.GetSetting(ctx, SettingLayout)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteStoreSummaryWriteFailureIsRepaired(t *testing.T) {
	ctx := context.Background()
	buckets, _, info := loggingBuckets()
	svc := NewService(NewRemoteStore(buckets))

	info.failPut = true
	_, err := svc.StoreRun(ctx, testRun("Celeste", "Any%", 1650), "k")
	require.ErrorIs(t, err, errBucketDown)

	// The blob landed without its summary.
	blob, err := buckets.Data.Get(ctx, "k")
	require.NoError(t, err)
	_, err = buckets.Info.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)

	info.failPut = false
	infos, err := svc.GetSplitsInfos(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Celeste", infos[0].Info.Game)

	_, err = buckets.Info.Get(ctx, "k")
	assert.NoError(t, err, "missing summary is written back")

	loaded, err := svc.LoadSplits(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, blob, loaded)
}

func TestLoadSplitsRewritesMismatchedSummary(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore(NewMemoryBuckets())
	svc := NewService(store)

	blob := testBlob(t, "Celeste", "Any%", 1650)
	require.NoError(t, store.PutSplits(ctx, "k", blob, splits.Info{Game: "Stale", Category: "Old"}))

	loaded, err := svc.LoadSplits(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, blob, loaded)

	repaired, err := store.GetInfo(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Celeste", repaired.Game)
}

func TestGetSplitsInfosSkipsOrphanSummaries(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore(NewMemoryBuckets())
	svc := NewService(store)

	require.NoError(t, store.PutInfo(ctx, "orphan", splits.Info{Game: "Ghost"}))
	infos, err := svc.GetSplitsInfos(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

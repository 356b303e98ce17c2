package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/splits"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

func tiers(t *testing.T) map[string]Tier {
	return map[string]Tier{
		"local":      openMemoryStore(t, nil),
		"replicated": NewRemoteStore(NewMemoryBuckets()),
	}
}

func TestStoreSplitsRoundTrip(t *testing.T) {
	for name, tier := range tiers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(tier)

			run := testRun("Celeste", "Any%", 1650)
			blob := testBlob(t, "Celeste", "Any%", 1650)

			key, err := svc.StoreSplits(ctx, func(emit EmitFunc) { emit(run, blob) }, "")
			require.NoError(t, err)
			_, err = uuid.Parse(key)
			assert.NoError(t, err, "generated keys are uuids")

			loaded, err := svc.LoadSplits(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, blob, loaded)

			same, err := svc.StoreSplits(ctx, func(emit EmitFunc) { emit(run, blob) }, key)
			require.NoError(t, err)
			assert.Equal(t, key, same)

			infos, err := svc.GetSplitsInfos(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, key, infos[0].Key)
			assert.Equal(t, "Celeste", infos[0].Info.Game)
		})
	}
}

func TestStoreSplitsCopiesEmittedBlob(t *testing.T) {
	ctx := context.Background()
	tier := NewRemoteStore(NewMemoryBuckets())
	svc := NewService(tier)

	blob := testBlob(t, "Celeste", "Any%", 1650)
	scratch := append([]byte(nil), blob...)
	key, err := svc.StoreSplits(ctx, func(emit EmitFunc) {
		emit(testRun("Celeste", "Any%", 1650), scratch)
		for i := range scratch {
			scratch[i] = 0
		}
	}, "k")
	require.NoError(t, err)

	loaded, err := svc.LoadSplits(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, blob, loaded)
}

func TestStoreSplitsProducerMustEmitOnce(t *testing.T) {
	svc := NewService(NewRemoteStore(NewMemoryBuckets()))
	ctx := context.Background()
	run := testRun("Celeste", "Any%", 1650)
	blob := testBlob(t, "Celeste", "Any%", 1650)

	assert.Panics(t, func() {
		_, _ = svc.StoreSplits(ctx, func(emit EmitFunc) {}, "")
	})
	assert.Panics(t, func() {
		_, _ = svc.StoreSplits(ctx, func(emit EmitFunc) {
			emit(run, blob)
			emit(run, blob)
		}, "")
	})
	assert.Panics(t, func() {
		_, _ = svc.StoreSplits(ctx, func(emit EmitFunc) { emit(run, []byte("not a run")) }, "")
	})
}

func TestStoreRunSummaryMatchesBlob(t *testing.T) {
	ctx := context.Background()
	data, info := NewMemoryBucket(), NewMemoryBucket()
	svc := NewService(NewRemoteStore(Buckets{Data: data, Info: info, Settings: NewMemoryBucket()}))

	clock := clockwork.NewFakeClock()
	tm, err := timer.New(models.DefaultRun(), clock)
	require.NoError(t, err)
	tm.Start()
	clock.Advance(1234567891 * time.Nanosecond)
	tm.Split()
	tm.Reset(true)

	key, err := svc.StoreRun(ctx, tm.Run(), "")
	require.NoError(t, err)

	blob, err := svc.LoadSplits(ctx, key)
	require.NoError(t, err)
	fromBlob, ok := splits.ParseAndExtract(blob)
	require.True(t, ok)
	require.NotNil(t, fromBlob.RealTime)

	stored, err := svc.Tier().GetInfo(ctx, key)
	require.NoError(t, err)
	assert.True(t, stored.Equal(fromBlob), "stored %+v, blob %+v", stored, fromBlob)
	assert.Equal(t, 1, info.Puts(key), "loading must not rewrite a matching summary")
}

func TestLoadSplitsMissing(t *testing.T) {
	for name, tier := range tiers(t) {
		t.Run(name, func(t *testing.T) {
			blob, err := NewService(tier).LoadSplits(context.Background(), "nope")
			require.NoError(t, err)
			assert.Nil(t, blob)
		})
	}
}

func TestDeleteAndCopySplits(t *testing.T) {
	for name, tier := range tiers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(tier)

			key, err := svc.StoreRun(ctx, testRun("Celeste", "Any%", 1650), "")
			require.NoError(t, err)

			copyKey, err := svc.CopySplits(ctx, key)
			require.NoError(t, err)
			assert.NotEqual(t, key, copyKey)

			original, err := svc.LoadSplits(ctx, key)
			require.NoError(t, err)
			copied, err := svc.LoadSplits(ctx, copyKey)
			require.NoError(t, err)
			assert.Equal(t, original, copied)

			require.NoError(t, svc.DeleteSplits(ctx, key))
			assert.ErrorIs(t, svc.DeleteSplits(ctx, key), ErrNotFound)

			infos, err := svc.GetSplitsInfos(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, copyKey, infos[0].Key)
		})
	}
}

func TestSettings(t *testing.T) {
	for name, tier := range tiers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(tier)

			width, err := svc.LoadLayoutWidth(ctx)
			require.NoError(t, err)
			assert.Equal(t, DefaultLayoutWidth, width)

			key, err := svc.LoadSplitsKey(ctx)
			require.NoError(t, err)
			assert.Empty(t, key)

			layout, err := svc.LoadLayout(ctx)
			require.NoError(t, err)
			assert.Nil(t, layout)

			require.NoError(t, svc.StoreLayoutWidth(ctx, 420))
			require.NoError(t, svc.StoreSplitsKey(ctx, "abc"))
			require.NoError(t, svc.StoreLayout(ctx, json.RawMessage(`{"components": []}`)))
			require.NoError(t, svc.StoreHotkeys(ctx, json.RawMessage(`{"split": "Space"}`)))

			width, err = svc.LoadLayoutWidth(ctx)
			require.NoError(t, err)
			assert.Equal(t, 420, width)

			key, err = svc.LoadSplitsKey(ctx)
			require.NoError(t, err)
			assert.Equal(t, "abc", key)

			layout, err = svc.LoadLayout(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"components":[]}`, string(layout))

			hotkeys, err := svc.LoadHotkeys(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"split":"Space"}`, string(hotkeys))
		})
	}
}

func TestLoadSplitsKeyAcceptsNumbers(t *testing.T) {
	ctx := context.Background()
	tier := NewRemoteStore(NewMemoryBuckets())
	require.NoError(t, tier.PutSetting(ctx, SettingSplitsKey, []byte("1")))

	key, err := NewService(tier).LoadSplitsKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", key)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	local := openMemoryStore(t, NewMemoryLegacyArea(legacyValues(t)))
	remote := NewRemoteStore(NewMemoryBuckets())

	copied, err := Seed(ctx, local, remote)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	svc := NewService(remote)
	infos, err := svc.GetSplitsInfos(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Celeste", infos[0].Info.Game)

	key, err := svc.LoadSplitsKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", key)

	// A tier that already has runs is not seeded again.
	_, err = NewService(local).StoreRun(ctx, testRun("Other", "Any%", 5), "")
	require.NoError(t, err)
	copied, err = Seed(ctx, local, remote)
	require.NoError(t, err)
	assert.Zero(t, copied)
}

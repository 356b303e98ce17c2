package splits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

func TestExtractEmptyRun(t *testing.T) {
	run := models.NewRun()
	run.GameName = "Celeste"
	run.CategoryName = "Any%"

	info := Extract(run)
	assert.Equal(t, "Celeste", info.Game)
	assert.Equal(t, "Any%", info.Category)
	assert.Nil(t, info.RealTime)
	assert.Nil(t, info.GameTime)
}

func TestExtractUsesLastSegment(t *testing.T) {
	run := models.NewRun()
	run.GameName = "Celeste"
	run.CategoryName = "Any%"
	run.Metadata.Platform = "PC"
	run.PushSegment(models.Segment{Name: "1", PersonalBestSplitTime: models.NewTime(timespan.FromSeconds(10), timespan.FromSeconds(9))})
	run.PushSegment(models.Segment{Name: "2", PersonalBestSplitTime: models.Time{RealTime: timespan.FromSeconds(95.5).Ptr()}})

	info := Extract(run)
	assert.Equal(t, "Any% (PC)", info.Category)
	require.NotNil(t, info.RealTime)
	assert.InDelta(t, 95.5, *info.RealTime, 1e-9)
	require.NotNil(t, info.GameTime, "game time defaults to 0 when the run has segments")
	assert.Equal(t, 0.0, *info.GameTime)
}

func TestExtractWithoutPersonalBest(t *testing.T) {
	info := Extract(models.DefaultRun())
	require.NotNil(t, info.RealTime)
	require.NotNil(t, info.GameTime)
	assert.Equal(t, 0.0, *info.RealTime)
	assert.Equal(t, 0.0, *info.GameTime)
}

func TestExtractIsDeterministic(t *testing.T) {
	run := models.DefaultRun()
	run.Segment(0).PersonalBestSplitTime = models.NewTime(timespan.FromSeconds(3), timespan.FromSeconds(2))

	first, second := Extract(run), Extract(run)
	assert.Equal(t, first, second)
	assert.True(t, first.Equal(second))
}

func TestParseAndExtract(t *testing.T) {
	run := models.DefaultRun()
	run.Segment(0).PersonalBestSplitTime = models.Time{RealTime: timespan.FromSeconds(42).Ptr()}
	blob, err := runcodec.SaveAsBytes(run)
	require.NoError(t, err)

	info, ok := ParseAndExtract(blob)
	require.True(t, ok)
	assert.True(t, Extract(run).Equal(info))

	_, ok = ParseAndExtract([]byte("not splits"))
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	a := Info{Game: "g", Category: "c"}
	b := a
	one := 1.0
	b.RealTime = &one
	assert.False(t, a.Equal(b))
	a.RealTime = &one
	assert.True(t, a.Equal(b))
}

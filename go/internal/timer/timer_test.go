package timer

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

func newRun(segments ...string) *models.Run {
	run := models.NewRun()
	run.GameName = "Celeste"
	run.CategoryName = "Any%"
	for _, name := range segments {
		run.PushSegment(models.NewSegment(name))
	}
	return run
}

func newTimer(t *testing.T, segments ...string) (*Timer, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tm, err := New(newRun(segments...), clock)
	require.NoError(t, err)
	return tm, clock
}

func seconds(s float64) *timespan.TimeSpan {
	return timespan.FromSeconds(s).Ptr()
}

func TestNewRejectsEmptyRun(t *testing.T) {
	_, err := New(models.NewRun(), clockwork.NewFakeClock())
	assert.ErrorIs(t, err, ErrEmptyRun)

	_, err = New(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyRun)
}

func TestStartSplitEnd(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")
	assert.Equal(t, models.TimerPhaseNotRunning, tm.CurrentPhase())
	assert.Equal(t, -1, tm.CurrentSplitIndex())

	tm.Start()
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())
	assert.Equal(t, 0, tm.CurrentSplitIndex())
	assert.Equal(t, 1, tm.Run().AttemptCount)

	clock.Advance(10 * time.Second)
	tm.Split()
	clock.Advance(5 * time.Second)
	tm.Split()

	assert.Equal(t, models.TimerPhaseEnded, tm.CurrentPhase())
	assert.Equal(t, 2, tm.CurrentSplitIndex())
	assert.Equal(t, []models.Time{
		{RealTime: seconds(10), GameTime: seconds(10)},
		{RealTime: seconds(15), GameTime: seconds(15)},
	}, tm.SplitTimestamps())

	// Time stops once the attempt has ended.
	clock.Advance(time.Minute)
	assert.Equal(t, seconds(15), tm.CurrentTime().RealTime)

	tm.Start()
	assert.Equal(t, 1, tm.Run().AttemptCount, "start is a no-op outside NotRunning")
}

func TestSplitOrStart(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")
	tm.SplitOrStart()
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())
	assert.Empty(t, tm.SplitTimestamps())

	clock.Advance(time.Second)
	tm.SplitOrStart()
	assert.Len(t, tm.SplitTimestamps(), 1)
}

func TestOperationsAreNoOpsWhenNotRunning(t *testing.T) {
	tm, _ := newTimer(t, "A", "B")
	tm.Split()
	tm.SkipSplit()
	tm.UndoSplit()
	tm.Pause()
	tm.Resume()
	tm.Reset(true)

	assert.Equal(t, models.TimerPhaseNotRunning, tm.CurrentPhase())
	assert.Equal(t, -1, tm.CurrentSplitIndex())
	assert.Empty(t, tm.SplitTimestamps())
	assert.Empty(t, tm.Run().Attempts)
}

func TestUndoAfterSplitRestores(t *testing.T) {
	tm, clock := newTimer(t, "A", "B", "C")
	tm.Start()
	clock.Advance(3 * time.Second)
	tm.Split()

	before := tm.SplitTimestamps()
	beforeIndex := tm.CurrentSplitIndex()

	clock.Advance(4 * time.Second)
	tm.Split()
	tm.UndoSplit()

	assert.Equal(t, before, tm.SplitTimestamps())
	assert.Equal(t, beforeIndex, tm.CurrentSplitIndex())
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())
}

func TestUndoFromEndedResumes(t *testing.T) {
	tm, clock := newTimer(t, "A")
	tm.Start()
	clock.Advance(3 * time.Second)
	tm.Split()
	require.Equal(t, models.TimerPhaseEnded, tm.CurrentPhase())

	tm.UndoSplit()
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())
	assert.Empty(t, tm.SplitTimestamps())

	clock.Advance(2 * time.Second)
	assert.Equal(t, seconds(5), tm.CurrentTime().RealTime)
}

func TestUndoWithoutSplitsIsNoOp(t *testing.T) {
	tm, _ := newTimer(t, "A", "B")
	tm.Start()
	tm.UndoSplit()
	assert.Equal(t, 0, tm.CurrentSplitIndex())
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())
}

func TestSkipNeverAppends(t *testing.T) {
	tm, _ := newTimer(t, "A", "B", "C")
	tm.Start()

	tm.SkipSplit()
	assert.Empty(t, tm.SplitTimestamps())
	assert.Equal(t, 1, tm.CurrentSplitIndex())

	tm.SkipSplit()
	assert.Equal(t, 2, tm.CurrentSplitIndex())

	tm.SkipSplit()
	assert.Equal(t, 2, tm.CurrentSplitIndex(), "the last segment cannot be skipped")
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())
	assert.Empty(t, tm.SplitTimestamps())

	tm.UndoSplit()
	assert.Equal(t, 1, tm.CurrentSplitIndex(), "undo reverts a skip")
}

func TestRapidSplitsOnLastSegment(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")
	tm.Start()
	clock.Advance(time.Second)
	tm.Split()

	clock.Advance(time.Second)
	tm.Split()
	require.Equal(t, models.TimerPhaseEnded, tm.CurrentPhase())
	require.Len(t, tm.SplitTimestamps(), 2)

	tm.Split()
	assert.Len(t, tm.SplitTimestamps(), 2)
	assert.Equal(t, models.TimerPhaseEnded, tm.CurrentPhase())
}

func TestResetClearsState(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")
	tm.Start()
	tm.InitializeGameTime()
	clock.Advance(time.Second)
	tm.Split()

	tm.Reset(false)
	assert.Equal(t, models.TimerPhaseNotRunning, tm.CurrentPhase())
	assert.Empty(t, tm.SplitTimestamps())
	assert.Equal(t, -1, tm.CurrentSplitIndex())
	assert.False(t, tm.IsGameTimeInitialized())
	assert.Empty(t, tm.Run().Attempts, "reset without update keeps the history")
}

func TestResetUpdatesPersonalBestAndBestSegments(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")

	attempt := func(first, second time.Duration) {
		tm.Start()
		clock.Advance(first)
		tm.Split()
		clock.Advance(second)
		tm.Split()
		tm.Reset(true)
	}

	attempt(10*time.Second, 20*time.Second)
	run := tm.Run()
	assert.Equal(t, seconds(10), run.Segment(0).PersonalBestSplitTime.RealTime)
	assert.Equal(t, seconds(30), run.Segment(1).PersonalBestSplitTime.RealTime)
	assert.Equal(t, seconds(30), run.Segment(1).PersonalBestSplitTime.GameTime)
	assert.Equal(t, seconds(10), run.Segment(0).BestSegmentTime.RealTime)
	assert.Equal(t, seconds(20), run.Segment(1).BestSegmentTime.RealTime)
	require.Len(t, run.Attempts, 1)
	assert.Equal(t, 1, run.Attempts[0].ID)
	assert.Equal(t, seconds(30), run.Attempts[0].Time.RealTime)

	// Slower overall, slower on every segment: nothing changes.
	attempt(15*time.Second, 25*time.Second)
	assert.Equal(t, seconds(30), run.Segment(1).PersonalBestSplitTime.RealTime)
	assert.Equal(t, seconds(10), run.Segment(0).BestSegmentTime.RealTime)
	assert.Equal(t, seconds(20), run.Segment(1).BestSegmentTime.RealTime)

	// Tied overall but the second segment is faster.
	attempt(12*time.Second, 18*time.Second)
	assert.Equal(t, seconds(10), run.Segment(0).PersonalBestSplitTime.RealTime)
	assert.Equal(t, seconds(18), run.Segment(1).BestSegmentTime.RealTime)

	require.Len(t, run.Attempts, 3)
	assert.Equal(t, 3, run.Attempts[2].ID)
	assert.Equal(t, 3, run.AttemptCount)
}

func TestResetUnfinishedAttemptKeepsPersonalBest(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")
	tm.Start()
	clock.Advance(4 * time.Second)
	tm.Split()
	tm.Reset(true)

	run := tm.Run()
	assert.Nil(t, run.Segment(1).PersonalBestSplitTime.RealTime)
	assert.Equal(t, seconds(4), run.Segment(0).BestSegmentTime.RealTime)
	require.Len(t, run.Attempts, 1)
	assert.True(t, run.Attempts[0].Time.IsEmpty())
	assert.NotNil(t, run.Attempts[0].Ended)
}

func TestSkippedSegmentDoesNotSetBestSegment(t *testing.T) {
	tm, clock := newTimer(t, "A", "B", "C")
	tm.Start()
	clock.Advance(5 * time.Second)
	tm.SkipSplit()
	clock.Advance(5 * time.Second)
	tm.Split()
	clock.Advance(5 * time.Second)
	tm.Split()
	tm.Reset(true)

	run := tm.Run()
	assert.Nil(t, run.Segment(0).BestSegmentTime.RealTime)
	assert.Nil(t, run.Segment(1).BestSegmentTime.RealTime)
	assert.Equal(t, seconds(5), run.Segment(2).BestSegmentTime.RealTime)
	assert.Nil(t, run.Segment(0).PersonalBestSplitTime.RealTime)
	assert.Equal(t, seconds(15), run.Segment(2).PersonalBestSplitTime.RealTime)
}

func TestPauseFreezesRealTime(t *testing.T) {
	tm, clock := newTimer(t, "A")
	tm.TogglePauseOrStart()
	require.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())

	clock.Advance(5 * time.Second)
	tm.TogglePauseOrStart()
	require.Equal(t, models.TimerPhasePaused, tm.CurrentPhase())

	clock.Advance(time.Minute)
	assert.Equal(t, seconds(5), tm.CurrentTime().RealTime)

	tm.Split()
	assert.Empty(t, tm.SplitTimestamps(), "split is ignored while paused")

	tm.TogglePauseOrStart()
	clock.Advance(2 * time.Second)
	assert.Equal(t, seconds(7), tm.CurrentTime().RealTime)

	tm.Split()
	tm.TogglePauseOrStart()
	assert.Equal(t, models.TimerPhaseEnded, tm.CurrentPhase(), "toggle does nothing once ended")
}

func TestNegativeOffset(t *testing.T) {
	run := newRun("A")
	run.Offset = timespan.FromSeconds(-5)
	clock := clockwork.NewFakeClock()
	tm, err := New(run, clock)
	require.NoError(t, err)

	assert.Equal(t, seconds(-5), tm.CurrentTime().RealTime)

	tm.Start()
	clock.Advance(2 * time.Second)
	tm.Split()
	assert.Empty(t, tm.SplitTimestamps(), "no split during the countdown")

	clock.Advance(10 * time.Second)
	tm.Split()
	assert.Equal(t, []models.Time{{RealTime: seconds(7), GameTime: seconds(7)}}, tm.SplitTimestamps())
}

func TestGameTimeInjection(t *testing.T) {
	tm, clock := newTimer(t, "A", "B")
	tm.Start()

	tm.SetGameTime(timespan.FromSeconds(90))
	clock.Advance(time.Second)
	assert.Equal(t, seconds(1), tm.CurrentTime().GameTime, "ignored before initialization")

	tm.InitializeGameTime()
	tm.InitializeGameTime()
	clock.Advance(9 * time.Second)
	tm.SetGameTime(timespan.FromSeconds(90))
	assert.Equal(t, seconds(90), tm.CurrentTime().GameTime)

	clock.Advance(5 * time.Second)
	assert.Equal(t, seconds(95), tm.CurrentTime().GameTime)
	assert.Equal(t, seconds(15), tm.CurrentTime().RealTime)

	tm.SetLoadingTimes(timespan.FromSeconds(3))
	assert.Equal(t, seconds(12), tm.CurrentTime().GameTime)
	assert.Equal(t, timespan.FromSeconds(3), tm.LoadingTimes())
}

func TestPauseGameTime(t *testing.T) {
	tm, clock := newTimer(t, "A")
	tm.Start()
	clock.Advance(10 * time.Second)

	tm.PauseGameTime()
	assert.True(t, tm.IsGameTimePaused())
	clock.Advance(20 * time.Second)

	now := tm.CurrentTime()
	assert.Equal(t, seconds(10), now.GameTime)
	assert.Equal(t, seconds(30), now.RealTime)
	assert.Equal(t, models.TimerPhaseRunning, tm.CurrentPhase())

	tm.ResumeGameTime()
	assert.False(t, tm.IsGameTimePaused())
	clock.Advance(5 * time.Second)
	assert.Equal(t, seconds(15), tm.CurrentTime().GameTime)
	assert.Equal(t, timespan.FromSeconds(20), tm.LoadingTimes())
}

func TestSetGameTimeWhilePaused(t *testing.T) {
	tm, clock := newTimer(t, "A")
	tm.Start()
	tm.InitializeGameTime()
	tm.PauseGameTime()
	clock.Advance(10 * time.Second)

	tm.SetGameTime(timespan.FromSeconds(42))
	clock.Advance(10 * time.Second)
	assert.Equal(t, seconds(42), tm.CurrentTime().GameTime)
}

func TestSetRun(t *testing.T) {
	tm, _ := newTimer(t, "A")

	replacement := newRun("X", "Y")
	assert.Nil(t, tm.SetRun(replacement))
	assert.Same(t, replacement, tm.Run())

	empty := models.NewRun()
	assert.Same(t, empty, tm.SetRun(empty))

	tm.Start()
	rejected := newRun("Z")
	assert.Same(t, rejected, tm.SetRun(rejected))
	assert.Same(t, replacement, tm.Run())
}

func TestComparisonsCycle(t *testing.T) {
	run := newRun("A")
	run.CustomComparisons = []string{"Rival"}
	tm, err := New(run, clockwork.NewFakeClock())
	require.NoError(t, err)

	assert.Equal(t, models.PersonalBestComparison, tm.CurrentComparison())
	tm.SwitchToNextComparison()
	assert.Equal(t, models.BestSegmentsComparison, tm.CurrentComparison())
	tm.SwitchToNextComparison()
	assert.Equal(t, "Rival", tm.CurrentComparison())
	tm.SwitchToNextComparison()
	assert.Equal(t, models.PersonalBestComparison, tm.CurrentComparison())
	tm.SwitchToPreviousComparison()
	assert.Equal(t, "Rival", tm.CurrentComparison())

	tm.SetCurrentComparison("nope")
	assert.Equal(t, "Rival", tm.CurrentComparison())

	require.Nil(t, tm.SetRun(newRun("B")))
	assert.Equal(t, models.PersonalBestComparison, tm.CurrentComparison(), "unknown comparison falls back")

	tm.SetCurrentTimingMethod(models.TimingMethodGameTime)
	assert.Equal(t, models.TimingMethodGameTime, tm.CurrentTimingMethod())
	tm.SetCurrentTimingMethod("Bogus")
	assert.Equal(t, models.TimingMethodGameTime, tm.CurrentTimingMethod())
	assert.Equal(t, models.TimerPhaseNotRunning, tm.CurrentPhase())
}

func TestSnapshot(t *testing.T) {
	tm, clock := newTimer(t, "A", "B", "C")
	tm.Run().Segment(0).BestSegmentTime = models.NewTime(timespan.FromSeconds(1), timespan.FromSeconds(1))
	tm.SetCurrentComparison(models.BestSegmentsComparison)

	tm.Start()
	tm.SkipSplit()
	clock.Advance(4 * time.Second)
	tm.Split()

	snap := tm.Snapshot()
	assert.Equal(t, models.TimerPhaseRunning, snap.Phase)
	assert.Equal(t, 2, snap.CurrentSplitIndex)
	require.Len(t, snap.Segments, 3)
	assert.True(t, snap.Segments[0].Skipped)
	assert.Nil(t, snap.Segments[0].SplitTime)
	require.NotNil(t, snap.Segments[1].SplitTime)
	assert.Equal(t, seconds(4), snap.Segments[1].SplitTime.RealTime)
	assert.Nil(t, snap.Segments[2].SplitTime)
	assert.Equal(t, seconds(1), snap.Segments[0].Comparison.RealTime)

	// The snapshot does not alias the timer.
	*snap.Segments[1].SplitTime.RealTime = 0
	assert.Equal(t, seconds(4), tm.SplitTimestamps()[0].RealTime)
}

func checkInvariants(t *testing.T, tm *Timer) {
	t.Helper()
	switch tm.CurrentPhase() {
	case models.TimerPhaseNotRunning:
		require.Equal(t, -1, tm.CurrentSplitIndex())
		require.Empty(t, tm.SplitTimestamps())
	case models.TimerPhaseEnded:
		require.Equal(t, tm.Run().Len(), tm.CurrentSplitIndex())
		require.Len(t, tm.splits, tm.CurrentSplitIndex())
	default:
		require.Less(t, tm.CurrentSplitIndex(), tm.Run().Len())
		require.Len(t, tm.splits, tm.CurrentSplitIndex())
	}

	var last timespan.TimeSpan
	for _, ts := range tm.SplitTimestamps() {
		require.NotNil(t, ts.RealTime)
		require.GreaterOrEqual(t, *ts.RealTime, last)
		last = *ts.RealTime
	}
}

func randomOp(r *rand.Rand, tm *Timer) {
	switch r.IntN(12) {
	case 0:
		tm.Start()
	case 1, 2, 3:
		tm.Split()
	case 4:
		tm.SplitOrStart()
	case 5:
		tm.SkipSplit()
	case 6:
		tm.UndoSplit()
	case 7:
		tm.Reset(r.IntN(2) == 0)
	case 8:
		tm.TogglePauseOrStart()
	case 9:
		tm.InitializeGameTime()
		tm.SetGameTime(timespan.FromSeconds(float64(r.IntN(100))))
	case 10:
		tm.PauseGameTime()
	case 11:
		tm.ResumeGameTime()
	}
}

func TestRandomSequencesKeepInvariants(t *testing.T) {
	for seed := uint64(0); seed < 50; seed++ {
		r := rand.New(rand.NewPCG(seed, 7))
		tm, clock := newTimer(t, "A", "B", "C", "D")

		for i := 0; i < 300; i++ {
			clock.Advance(time.Duration(r.IntN(1000)) * time.Millisecond)
			randomOp(r, tm)
			checkInvariants(t, tm)
		}

		tm.Reset(r.IntN(2) == 0)
		assert.Equal(t, models.TimerPhaseNotRunning, tm.CurrentPhase())
		assert.Empty(t, tm.SplitTimestamps())
	}
}

func TestSharedTimerSerializesWriters(t *testing.T) {
	tm, err := New(newRun("A", "B", "C", "D"), clockwork.NewRealClock())
	require.NoError(t, err)
	shared := NewShared(tm)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, 11))
			for i := 0; i < 200; i++ {
				shared.Write(func(tm *Timer) { randomOp(r, tm) })
			}
		}(uint64(w))
	}
	for rd := 0; rd < 4; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				shared.Read(func(tm *Timer) {
					if tm.CurrentPhase() == models.TimerPhaseNotRunning && tm.CurrentSplitIndex() != -1 {
						t.Errorf("observed partially applied reset")
					}
				})
			}
		}()
	}
	wg.Wait()

	shared.Write(func(tm *Timer) { tm.Reset(false) })
	snap := ReadWith(shared, func(tm *Timer) Snapshot { return tm.Snapshot() })
	assert.Equal(t, models.TimerPhaseNotRunning, snap.Phase)
	assert.Empty(t, snap.SplitTimestamps)
}

func TestWriteWith(t *testing.T) {
	tm, _ := newTimer(t, "A")
	shared := NewShared(tm)

	rejected := WriteWith(shared, func(tm *Timer) *models.Run { return tm.SetRun(models.NewRun()) })
	assert.NotNil(t, rejected)

	phase := WriteWith(shared, func(tm *Timer) models.TimerPhase {
		tm.Start()
		return tm.CurrentPhase()
	})
	assert.Equal(t, models.TimerPhaseRunning, phase)
}

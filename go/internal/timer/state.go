package timer

import (
	"time"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

// SegmentState is one row of a Snapshot.
type SegmentState struct {
	Name       string       `json:"name"`
	SplitTime  *models.Time `json:"split_time,omitempty"`
	Skipped    bool         `json:"skipped,omitempty"`
	Comparison models.Time  `json:"comparison"`
}

// Snapshot is a self-contained copy of the timer state. It shares no memory
// with the timer and may outlive the Read call that produced it.
type Snapshot struct {
	Phase               models.TimerPhase   `json:"phase"`
	Game                string              `json:"game"`
	Category            string              `json:"category"`
	AttemptCount        int                 `json:"attempt_count"`
	CurrentSplitIndex   int                 `json:"current_split_index"`
	CurrentTime         models.Time         `json:"current_time"`
	SplitTimestamps     []models.Time       `json:"split_timestamps"`
	Comparison          string              `json:"comparison"`
	TimingMethod        models.TimingMethod `json:"timing_method"`
	GameTimeInitialized bool                `json:"game_time_initialized"`
	GameTimePaused      bool                `json:"game_time_paused"`
	LoadingTimes        timespan.TimeSpan   `json:"loading_times"`
	Segments            []SegmentState      `json:"segments"`
	CapturedAt          time.Time           `json:"captured_at"`
}

// CurrentPhase returns the lifecycle phase.
func (t *Timer) CurrentPhase() models.TimerPhase {
	return t.phase
}

// CurrentSplitIndex returns the active segment, or -1 when not running.
func (t *Timer) CurrentSplitIndex() int {
	return t.currentSplitIndex
}

// CurrentComparison returns the selected comparison name.
func (t *Timer) CurrentComparison() string {
	return t.currentComparison
}

// CurrentTimingMethod returns the selected timing method.
func (t *Timer) CurrentTimingMethod() models.TimingMethod {
	return t.timingMethod
}

// IsGameTimeInitialized reports whether game time injection is enabled.
func (t *Timer) IsGameTimeInitialized() bool {
	return t.gameTimeInitialized
}

// IsGameTimePaused reports whether game time is paused.
func (t *Timer) IsGameTimePaused() bool {
	return t.gameTimePaused
}

// LoadingTimes returns the accumulated loading times.
func (t *Timer) LoadingTimes() timespan.TimeSpan {
	return t.loadingTimes
}

// SplitTimestamps returns the times recorded by Split in this attempt, in
// order. Skipped segments have no entry.
func (t *Timer) SplitTimestamps() []models.Time {
	out := make([]models.Time, 0, len(t.splits))
	for _, rec := range t.splits {
		if !rec.skipped {
			out = append(out, rec.time.Clone())
		}
	}
	return out
}

// CurrentTime returns the elapsed real time and game time. Both components
// are always set.
func (t *Timer) CurrentTime() models.Time {
	if t.phase == models.TimerPhaseEnded {
		return t.splits[len(t.splits)-1].time.Clone()
	}

	realTime := t.currentRealTime()
	if t.phase == models.TimerPhaseNotRunning {
		return models.Time{RealTime: realTime, GameTime: realTime.Ptr()}
	}

	gameTime := *realTime - t.loadingTimes
	if t.gameTimePaused && t.gameTimePauseTime != nil {
		gameTime = *t.gameTimePauseTime
	}
	return models.Time{RealTime: realTime, GameTime: gameTime.Ptr()}
}

func (t *Timer) currentRealTime() *timespan.TimeSpan {
	switch t.phase {
	case models.TimerPhaseRunning:
		return timespan.FromDuration(t.clock.Since(t.adjustedStart)).Ptr()
	case models.TimerPhasePaused:
		return t.timePausedAt.Ptr()
	case models.TimerPhaseEnded:
		return t.splits[len(t.splits)-1].time.RealTime
	default:
		return t.run.Offset.Ptr()
	}
}

// Snapshot copies the full timer state.
func (t *Timer) Snapshot() Snapshot {
	s := Snapshot{
		Phase:               t.phase,
		Game:                t.run.GameName,
		Category:            t.run.ExtendedCategoryName(true, true, true),
		AttemptCount:        t.run.AttemptCount,
		CurrentSplitIndex:   t.currentSplitIndex,
		CurrentTime:         t.CurrentTime(),
		SplitTimestamps:     t.SplitTimestamps(),
		Comparison:          t.currentComparison,
		TimingMethod:        t.timingMethod,
		GameTimeInitialized: t.gameTimeInitialized,
		GameTimePaused:      t.gameTimePaused,
		LoadingTimes:        t.loadingTimes,
		CapturedAt:          t.clock.Now(),
	}
	for i, segment := range t.run.Segments {
		row := SegmentState{
			Name:       segment.Name,
			Comparison: t.run.ComparisonSplitTime(i, t.currentComparison),
		}
		if i < len(t.splits) {
			row.Skipped = t.splits[i].skipped
			if !row.Skipped {
				split := t.splits[i].time.Clone()
				row.SplitTime = &split
			}
		}
		s.Segments = append(s.Segments, row)
	}
	return s
}

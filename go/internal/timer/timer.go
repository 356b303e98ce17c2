// Package timer implements the speedrun timer state machine.
//
// Every operation is legal in every phase. Operations that do not apply to
// the current phase are no-ops, so racing or out-of-order input from the
// keyboard, the remote socket or the control API can never fault the timer.
package timer

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

// ErrEmptyRun is returned when a timer is created for a run without segments.
var ErrEmptyRun = errors.New("run has no segments")

type splitRecord struct {
	time    models.Time
	skipped bool
}

// Timer owns the current run and the state of the attempt in progress.
type Timer struct {
	run   *models.Run
	clock clockwork.Clock

	phase             models.TimerPhase
	currentSplitIndex int
	attemptStarted    time.Time
	attemptEnded      time.Time
	adjustedStart     time.Time
	timePausedAt      timespan.TimeSpan
	splits            []splitRecord

	currentComparison string
	timingMethod      models.TimingMethod

	gameTimeInitialized bool
	gameTimePaused      bool
	gameTimePauseTime   *timespan.TimeSpan
	loadingTimes        timespan.TimeSpan
}

// New creates a timer that takes ownership of run.
func New(run *models.Run, clock clockwork.Clock) (*Timer, error) {
	if run == nil || run.Len() == 0 {
		return nil, ErrEmptyRun
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Timer{
		run:               run,
		clock:             clock,
		phase:             models.TimerPhaseNotRunning,
		currentSplitIndex: -1,
		currentComparison: models.PersonalBestComparison,
		timingMethod:      models.TimingMethodRealTime,
	}, nil
}

// SetRun replaces the run. It is only accepted while no attempt is in
// progress and the run has at least one segment. A rejected run is handed
// back to the caller; nil means the timer took ownership.
func (t *Timer) SetRun(run *models.Run) *models.Run {
	if run == nil || run.Len() == 0 || t.phase != models.TimerPhaseNotRunning {
		return run
	}
	t.run = run
	if !contains(run.Comparisons(), t.currentComparison) {
		t.currentComparison = models.PersonalBestComparison
	}
	return nil
}

// Run borrows the current run. The pointer is only valid for the duration
// of the surrounding Read or Write call.
func (t *Timer) Run() *models.Run {
	return t.run
}

// CloneRun returns a copy of the current run that the caller owns.
func (t *Timer) CloneRun() *models.Run {
	return t.run.Clone()
}

// Start begins an attempt.
func (t *Timer) Start() {
	if t.phase != models.TimerPhaseNotRunning {
		return
	}
	now := t.clock.Now()
	t.phase = models.TimerPhaseRunning
	t.currentSplitIndex = 0
	t.attemptStarted = now
	t.adjustedStart = now.Add(-t.run.Offset.Duration())
	t.timePausedAt = t.run.Offset
	t.splits = nil
	t.gameTimePaused = false
	t.gameTimePauseTime = nil
	t.loadingTimes = 0
	t.run.AttemptCount++
}

// Split records the current time for the active segment. Splitting the
// last segment ends the attempt.
func (t *Timer) Split() {
	if t.phase != models.TimerPhaseRunning || t.currentSplitIndex >= t.run.Len() {
		return
	}
	now := t.CurrentTime()
	if now.RealTime != nil && *now.RealTime < 0 {
		return
	}
	t.splits = append(t.splits, splitRecord{time: now})
	t.currentSplitIndex++
	if t.currentSplitIndex == t.run.Len() {
		t.phase = models.TimerPhaseEnded
		t.attemptEnded = t.clock.Now()
	}
}

// SplitOrStart starts an attempt when none is running and splits otherwise.
func (t *Timer) SplitOrStart() {
	if t.phase == models.TimerPhaseNotRunning {
		t.Start()
		return
	}
	t.Split()
}

// SkipSplit moves to the next segment without recording a time. The last
// segment cannot be skipped.
func (t *Timer) SkipSplit() {
	if t.phase != models.TimerPhaseRunning || t.currentSplitIndex >= t.run.Len()-1 {
		return
	}
	t.splits = append(t.splits, splitRecord{skipped: true})
	t.currentSplitIndex++
}

// UndoSplit reverts the most recent split or skip. Undoing the final split
// resumes the attempt.
func (t *Timer) UndoSplit() {
	if t.phase != models.TimerPhaseRunning && t.phase != models.TimerPhaseEnded {
		return
	}
	if t.currentSplitIndex <= 0 {
		return
	}
	if t.phase == models.TimerPhaseEnded {
		t.phase = models.TimerPhaseRunning
	}
	t.currentSplitIndex--
	t.splits = t.splits[:len(t.splits)-1]
}

// Reset ends the attempt. With updateSplits the attempt is added to the
// history and personal best and best segments are updated in memory; the
// caller decides when to persist the run.
func (t *Timer) Reset(updateSplits bool) {
	if t.phase == models.TimerPhaseNotRunning {
		return
	}
	if t.phase != models.TimerPhaseEnded {
		t.attemptEnded = t.clock.Now()
	}
	t.ResumeGameTime()
	if updateSplits {
		t.updateAttemptHistory()
		t.updateBestSegments()
		t.updatePersonalBest()
	}
	t.resetState()
}

func (t *Timer) resetState() {
	t.phase = models.TimerPhaseNotRunning
	t.currentSplitIndex = -1
	t.splits = nil
	t.timePausedAt = 0
	t.gameTimeInitialized = false
	t.gameTimePaused = false
	t.gameTimePauseTime = nil
	t.loadingTimes = 0
}

// Pause freezes a running attempt.
func (t *Timer) Pause() {
	if t.phase != models.TimerPhaseRunning {
		return
	}
	t.timePausedAt = *t.currentRealTime()
	t.phase = models.TimerPhasePaused
}

// Resume continues a paused attempt from where it was frozen.
func (t *Timer) Resume() {
	if t.phase != models.TimerPhasePaused {
		return
	}
	t.adjustedStart = t.clock.Now().Add(-t.timePausedAt.Duration())
	t.phase = models.TimerPhaseRunning
}

// TogglePauseOrStart pauses, resumes or starts depending on the phase.
func (t *Timer) TogglePauseOrStart() {
	switch t.phase {
	case models.TimerPhaseRunning:
		t.Pause()
	case models.TimerPhasePaused:
		t.Resume()
	case models.TimerPhaseNotRunning:
		t.Start()
	}
}

// SetCurrentTimingMethod selects the timing method used for display.
func (t *Timer) SetCurrentTimingMethod(method models.TimingMethod) {
	if method != models.TimingMethodRealTime && method != models.TimingMethodGameTime {
		return
	}
	t.timingMethod = method
}

// SetCurrentComparison selects a comparison by name. Unknown names are ignored.
func (t *Timer) SetCurrentComparison(name string) {
	if contains(t.run.Comparisons(), name) {
		t.currentComparison = name
	}
}

// SwitchToNextComparison cycles forward through the run's comparisons.
func (t *Timer) SwitchToNextComparison() {
	t.shiftComparison(1)
}

// SwitchToPreviousComparison cycles backward through the run's comparisons.
func (t *Timer) SwitchToPreviousComparison() {
	t.shiftComparison(-1)
}

func (t *Timer) shiftComparison(step int) {
	comparisons := t.run.Comparisons()
	idx := 0
	for i, c := range comparisons {
		if c == t.currentComparison {
			idx = i
			break
		}
	}
	idx = (idx + step + len(comparisons)) % len(comparisons)
	t.currentComparison = comparisons[idx]
}

func (t *Timer) updateAttemptHistory() {
	id := 1
	for _, a := range t.run.Attempts {
		if a.ID >= id {
			id = a.ID + 1
		}
	}

	var final models.Time
	if t.phase == models.TimerPhaseEnded && len(t.splits) > 0 {
		final = t.splits[len(t.splits)-1].time.Clone()
	}
	started, ended := t.attemptStarted.UTC().Truncate(time.Second), t.attemptEnded.UTC().Truncate(time.Second)
	t.run.Attempts = append(t.run.Attempts, models.Attempt{
		ID:      id,
		Time:    final,
		Started: &started,
		Ended:   &ended,
	})
}

func (t *Timer) updateBestSegments() {
	for _, method := range models.TimingMethods {
		previous := timespan.Zero.Ptr()
		for i, rec := range t.splits {
			split := rec.time.Get(method)
			if rec.skipped || split == nil {
				previous = nil
				continue
			}
			if previous != nil {
				segmentTime := *split - *previous
				segment := t.run.Segment(i)
				best := segment.BestSegmentTime.Get(method)
				if best == nil || segmentTime < *best {
					segment.BestSegmentTime = segment.BestSegmentTime.With(method, &segmentTime)
				}
			}
			previous = split
		}
	}
}

func (t *Timer) updatePersonalBest() {
	if t.phase != models.TimerPhaseEnded {
		return
	}
	last := t.run.Len() - 1
	for _, method := range models.TimingMethods {
		final := t.splits[last].time.Get(method)
		pb := t.run.Segment(last).PersonalBestSplitTime.Get(method)
		if final == nil || (pb != nil && *final >= *pb) {
			continue
		}
		for i := range t.run.Segments {
			segment := t.run.Segment(i)
			segment.PersonalBestSplitTime = segment.PersonalBestSplitTime.With(method, t.splits[i].time.Get(method))
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

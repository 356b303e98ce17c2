package timer

import (
	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

// Game time is real time minus the accumulated loading times, unless game
// time is paused, in which case it stays at the value it was paused at.

// InitializeGameTime enables game time injection for the current attempt.
// Calling it again has no effect.
func (t *Timer) InitializeGameTime() {
	t.gameTimeInitialized = true
}

// SetGameTime sets the game time directly. It is ignored until game time is
// initialized and while no attempt is in progress.
func (t *Timer) SetGameTime(gameTime timespan.TimeSpan) {
	if !t.gameTimeInitialized || !t.isActive() {
		return
	}
	if t.gameTimePaused {
		t.gameTimePauseTime = gameTime.Ptr()
	}
	t.loadingTimes = *t.currentRealTime() - gameTime
}

// SetLoadingTimes sets the total loading times directly. It is ignored until
// game time is initialized and while no attempt is in progress.
func (t *Timer) SetLoadingTimes(loadingTimes timespan.TimeSpan) {
	if !t.gameTimeInitialized || !t.isActive() {
		return
	}
	t.loadingTimes = loadingTimes
	if t.gameTimePaused {
		t.gameTimePauseTime = (*t.currentRealTime() - loadingTimes).Ptr()
	}
}

// PauseGameTime stops game time from advancing, independent of the phase.
func (t *Timer) PauseGameTime() {
	if t.gameTimePaused {
		return
	}
	t.gameTimePauseTime = t.CurrentTime().GameTime
	t.gameTimePaused = true
}

// ResumeGameTime lets game time advance again from where it was paused.
func (t *Timer) ResumeGameTime() {
	if !t.gameTimePaused {
		return
	}
	if t.gameTimePauseTime != nil {
		t.loadingTimes = *t.currentRealTime() - *t.gameTimePauseTime
	}
	t.gameTimePaused = false
	t.gameTimePauseTime = nil
}

func (t *Timer) isActive() bool {
	return t.phase == models.TimerPhaseRunning || t.phase == models.TimerPhasePaused
}

package models

import "github.com/mcdev12/splitkeeper/go/internal/timespan"

// TimingMethod selects which clock a time value is read from.
type TimingMethod string

const (
	TimingMethodRealTime TimingMethod = "RealTime"
	TimingMethodGameTime TimingMethod = "GameTime"
)

// TimerPhase is the lifecycle stage of the timer.
type TimerPhase string

const (
	TimerPhaseNotRunning TimerPhase = "NotRunning"
	TimerPhaseRunning    TimerPhase = "Running"
	TimerPhasePaused     TimerPhase = "Paused"
	TimerPhaseEnded      TimerPhase = "Ended"
)

// Time holds a real time and a game time component, each optional.
type Time struct {
	RealTime *timespan.TimeSpan `json:"realTime,omitempty"`
	GameTime *timespan.TimeSpan `json:"gameTime,omitempty"`
}

// NewTime builds a Time with both components set.
func NewTime(realTime, gameTime timespan.TimeSpan) Time {
	return Time{RealTime: realTime.Ptr(), GameTime: gameTime.Ptr()}
}

// Get returns the component for the timing method.
func (t Time) Get(method TimingMethod) *timespan.TimeSpan {
	if method == TimingMethodGameTime {
		return t.GameTime
	}
	return t.RealTime
}

// With returns a copy of t with the component for method replaced.
func (t Time) With(method TimingMethod, v *timespan.TimeSpan) Time {
	if v != nil {
		v = v.Ptr()
	}
	if method == TimingMethodGameTime {
		t.GameTime = v
	} else {
		t.RealTime = v
	}
	return t
}

// IsEmpty reports whether neither component is set.
func (t Time) IsEmpty() bool {
	return t.RealTime == nil && t.GameTime == nil
}

// Clone deep-copies the pointers so the result shares nothing with t.
func (t Time) Clone() Time {
	var out Time
	if t.RealTime != nil {
		out.RealTime = t.RealTime.Ptr()
	}
	if t.GameTime != nil {
		out.GameTime = t.GameTime.Ptr()
	}
	return out
}

// TimingMethods lists both methods in display order.
var TimingMethods = []TimingMethod{TimingMethodRealTime, TimingMethodGameTime}

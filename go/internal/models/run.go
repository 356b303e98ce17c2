package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

// Built-in comparison names.
const (
	PersonalBestComparison = "Personal Best"
	BestSegmentsComparison = "Best Segments"
)

// Variable is a speedrun.com style category variable, e.g. Difficulty=Hard.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RunMetadata qualifies the category a run belongs to.
type RunMetadata struct {
	RunID        string     `json:"run_id,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	UsesEmulator bool       `json:"uses_emulator,omitempty"`
	Region       string     `json:"region,omitempty"`
	Variables    []Variable `json:"variables,omitempty"`
}

// Attempt is one entry in a run's attempt history.
type Attempt struct {
	ID      int        `json:"id"`
	Time    Time       `json:"time"`
	Started *time.Time `json:"started,omitempty"`
	Ended   *time.Time `json:"ended,omitempty"`
}

// Segment is one split point of a run.
type Segment struct {
	Name                  string          `json:"name"`
	PersonalBestSplitTime Time            `json:"personal_best_split_time"`
	BestSegmentTime       Time            `json:"best_segment_time"`
	Comparisons           map[string]Time `json:"comparisons,omitempty"`
}

// NewSegment creates a segment without any times.
func NewSegment(name string) Segment {
	return Segment{Name: name}
}

// Run is an ordered list of segments plus the game and category it times.
//
// A Run has exactly one owner at a time. Components that hand a run to
// another component give up their reference; readers that need to keep
// data beyond a single call take a Clone.
type Run struct {
	GameName          string            `json:"game_name"`
	CategoryName      string            `json:"category_name"`
	Metadata          RunMetadata       `json:"metadata"`
	Offset            timespan.TimeSpan `json:"offset"`
	AttemptCount      int               `json:"attempt_count"`
	Attempts          []Attempt         `json:"attempts,omitempty"`
	Segments          []Segment         `json:"segments"`
	CustomComparisons []string          `json:"custom_comparisons,omitempty"`
}

// NewRun creates an empty run.
func NewRun() *Run {
	return &Run{}
}

// DefaultRun is the run the timer starts with when nothing is stored.
func DefaultRun() *Run {
	run := NewRun()
	run.GameName = "Game"
	run.CategoryName = "Category"
	run.PushSegment(NewSegment("Time"))
	return run
}

// Len returns the number of segments.
func (r *Run) Len() int {
	return len(r.Segments)
}

// Segment returns the segment at index i.
func (r *Run) Segment(i int) *Segment {
	return &r.Segments[i]
}

// PushSegment appends a segment.
func (r *Run) PushSegment(s Segment) {
	r.Segments = append(r.Segments, s)
}

// Comparisons lists every comparison the timer can cycle through.
func (r *Run) Comparisons() []string {
	out := []string{PersonalBestComparison, BestSegmentsComparison}
	return append(out, r.CustomComparisons...)
}

// ComparisonSplitTime returns the split time of segment i for a comparison.
// Best Segments is the running sum of best segment times and is absent per
// timing method once any segment lacks one.
func (r *Run) ComparisonSplitTime(i int, comparison string) Time {
	switch comparison {
	case PersonalBestComparison:
		return r.Segments[i].PersonalBestSplitTime.Clone()
	case BestSegmentsComparison:
		var out Time
		for _, method := range TimingMethods {
			var sum timespan.TimeSpan
			ok := true
			for j := 0; j <= i; j++ {
				best := r.Segments[j].BestSegmentTime.Get(method)
				if best == nil {
					ok = false
					break
				}
				sum += *best
			}
			if ok {
				out = out.With(method, &sum)
			}
		}
		return out
	default:
		return r.Segments[i].Comparisons[comparison].Clone()
	}
}

// ExtendedCategoryName appends the enabled qualifiers to the category name,
// e.g. "Any% (Glitchless, NTSC, N64 Emulator)". Qualifiers are merged into an
// existing trailing parenthesis.
func (r *Run) ExtendedCategoryName(showRegion, showPlatform, showVariables bool) string {
	name := r.CategoryName

	var qualifiers []string
	if showVariables {
		for _, v := range r.Metadata.Variables {
			if v.Value != "" {
				qualifiers = append(qualifiers, v.Value)
			}
		}
	}
	if showRegion && r.Metadata.Region != "" {
		qualifiers = append(qualifiers, r.Metadata.Region)
	}
	if showPlatform && r.Metadata.Platform != "" {
		platform := r.Metadata.Platform
		if r.Metadata.UsesEmulator {
			platform += " Emulator"
		}
		qualifiers = append(qualifiers, platform)
	}

	if len(qualifiers) == 0 {
		return name
	}
	joined := strings.Join(qualifiers, ", ")
	if name == "" {
		return joined
	}
	if end := strings.LastIndex(name, ")"); end >= 0 && strings.Contains(name[:end], "(") {
		return name[:end] + ", " + joined + name[end:]
	}
	return fmt.Sprintf("%s (%s)", name, joined)
}

// ExtendedFileName builds a file name (without extension) from the game and
// category, dropping characters that are not allowed in file names.
func (r *Run) ExtendedFileName(useExtendedCategory bool) string {
	category := r.CategoryName
	if useExtendedCategory {
		category = r.ExtendedCategoryName(true, true, true)
	}

	name := r.GameName
	switch {
	case name == "":
		name = category
	case category != "":
		name = name + " - " + category
	}

	return strings.Map(func(c rune) rune {
		if strings.ContainsRune(`\/:*?"<>|`, c) {
			return -1
		}
		return c
	}, name)
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	out := *r
	out.Metadata.Variables = append([]Variable(nil), r.Metadata.Variables...)
	out.CustomComparisons = append([]string(nil), r.CustomComparisons...)

	out.Attempts = nil
	for _, a := range r.Attempts {
		a.Time = a.Time.Clone()
		out.Attempts = append(out.Attempts, a)
	}

	if r.Segments == nil {
		return &out
	}
	out.Segments = make([]Segment, len(r.Segments))
	for i, s := range r.Segments {
		s.PersonalBestSplitTime = s.PersonalBestSplitTime.Clone()
		s.BestSegmentTime = s.BestSegmentTime.Clone()
		if s.Comparisons != nil {
			cmp := make(map[string]Time, len(s.Comparisons))
			for k, v := range s.Comparisons {
				cmp[k] = v.Clone()
			}
			s.Comparisons = cmp
		}
		out.Segments[i] = s
	}
	return &out
}

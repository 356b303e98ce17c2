// Package runcodec reads and writes runs in the LiveSplit .lss XML format,
// the canonical serialized form used for storage, import and export.
package runcodec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

const (
	lssVersion     = "1.7.0"
	attemptDateFmt = "01/02/2006 15:04:05"
)

// ErrNotSplits is returned when the input is well-formed but not a run.
var ErrNotSplits = errors.New("not a splits file")

type lssTime struct {
	RealTime string `xml:"RealTime,omitempty"`
	GameTime string `xml:"GameTime,omitempty"`
}

type lssSplitTime struct {
	Name string `xml:"name,attr"`
	lssTime
}

type lssSegment struct {
	Name       string `xml:"Name"`
	Icon       string `xml:"Icon"`
	SplitTimes struct {
		Items []lssSplitTime `xml:"SplitTime"`
	} `xml:"SplitTimes"`
	BestSegmentTime lssTime `xml:"BestSegmentTime"`
	SegmentHistory  string  `xml:"SegmentHistory"`
}

type lssAttempt struct {
	ID              int    `xml:"id,attr"`
	Started         string `xml:"started,attr,omitempty"`
	IsStartedSynced string `xml:"isStartedSynced,attr,omitempty"`
	Ended           string `xml:"ended,attr,omitempty"`
	IsEndedSynced   string `xml:"isEndedSynced,attr,omitempty"`
	lssTime
}

type lssVariable struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type lssMetadata struct {
	Run struct {
		ID string `xml:"id,attr"`
	} `xml:"Run"`
	Platform struct {
		UsesEmulator string `xml:"usesEmulator,attr"`
		Value        string `xml:",chardata"`
	} `xml:"Platform"`
	Region    string `xml:"Region"`
	Variables struct {
		Items []lssVariable `xml:"Variable"`
	} `xml:"Variables"`
}

type lssRun struct {
	XMLName        xml.Name    `xml:"Run"`
	Version        string      `xml:"version,attr"`
	GameIcon       string      `xml:"GameIcon"`
	GameName       string      `xml:"GameName"`
	CategoryName   string      `xml:"CategoryName"`
	Metadata       lssMetadata `xml:"Metadata"`
	Offset         string      `xml:"Offset"`
	AttemptCount   int         `xml:"AttemptCount"`
	AttemptHistory struct {
		Items []lssAttempt `xml:"Attempt"`
	} `xml:"AttemptHistory"`
	Segments struct {
		Items []lssSegment `xml:"Segment"`
	} `xml:"Segments"`
	AutoSplitterSettings string `xml:"AutoSplitterSettings"`
}

// ParseResult holds either a parsed run or the reason parsing failed.
// A run with zero segments is a successful parse.
type ParseResult struct {
	run *models.Run
	err error
}

// ParsedSuccessfully reports whether a run was produced.
func (r ParseResult) ParsedSuccessfully() bool {
	return r.err == nil && r.run != nil
}

// Unwrap hands the parsed run to the caller. It panics on a failed parse.
func (r ParseResult) Unwrap() *models.Run {
	if !r.ParsedSuccessfully() {
		panic(fmt.Sprintf("runcodec: unwrap of failed parse: %v", r.err))
	}
	return r.run
}

// Err returns the parse failure, if any.
func (r ParseResult) Err() error {
	return r.err
}

// Parse decodes a run. pathHint names the source in error messages. With
// loadOnly set, the attempt history is skipped; callers that only need the
// segments and names use it to avoid the extra work.
func Parse(data []byte, pathHint string, loadOnly bool) ParseResult {
	run, err := parse(data, loadOnly)
	if err != nil {
		if pathHint != "" {
			err = fmt.Errorf("%s: %w", pathHint, err)
		}
		return ParseResult{err: err}
	}
	return ParseResult{run: run}
}

// ParseString is Parse for text input.
func ParseString(text, pathHint string, loadOnly bool) ParseResult {
	return Parse([]byte(text), pathHint, loadOnly)
}

func parse(data []byte, loadOnly bool) (*models.Run, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrNotSplits)
	}

	var doc lssRun
	if err := xml.Unmarshal(data, &doc); err != nil {
		if strings.Contains(err.Error(), "expected element type <Run>") {
			return nil, fmt.Errorf("%w: %v", ErrNotSplits, err)
		}
		return nil, fmt.Errorf("failed to decode splits: %w", err)
	}

	run := models.NewRun()
	run.GameName = doc.GameName
	run.CategoryName = doc.CategoryName
	run.AttemptCount = doc.AttemptCount
	run.Metadata = models.RunMetadata{
		RunID:        doc.Metadata.Run.ID,
		Platform:     doc.Metadata.Platform.Value,
		UsesEmulator: parseBool(doc.Metadata.Platform.UsesEmulator),
		Region:       doc.Metadata.Region,
	}
	for _, v := range doc.Metadata.Variables.Items {
		run.Metadata.Variables = append(run.Metadata.Variables, models.Variable{Name: v.Name, Value: v.Value})
	}

	offset, err := parseOptional(doc.Offset)
	if err != nil {
		return nil, fmt.Errorf("offset: %w", err)
	}
	if offset != nil {
		run.Offset = *offset
	}

	if !loadOnly {
		for _, a := range doc.AttemptHistory.Items {
			attempt, err := decodeAttempt(a)
			if err != nil {
				return nil, fmt.Errorf("attempt %d: %w", a.ID, err)
			}
			run.Attempts = append(run.Attempts, attempt)
		}
	}

	seen := make(map[string]bool)
	for i, s := range doc.Segments.Items {
		segment := models.NewSegment(s.Name)
		if segment.BestSegmentTime, err = decodeTime(s.BestSegmentTime); err != nil {
			return nil, fmt.Errorf("segment %d best segment: %w", i, err)
		}
		for _, st := range s.SplitTimes.Items {
			t, err := decodeTime(st.lssTime)
			if err != nil {
				return nil, fmt.Errorf("segment %d split time %q: %w", i, st.Name, err)
			}
			if st.Name == models.PersonalBestComparison {
				segment.PersonalBestSplitTime = t
				continue
			}
			if !seen[st.Name] {
				seen[st.Name] = true
				run.CustomComparisons = append(run.CustomComparisons, st.Name)
			}
			if t.IsEmpty() {
				continue
			}
			if segment.Comparisons == nil {
				segment.Comparisons = make(map[string]models.Time)
			}
			segment.Comparisons[st.Name] = t
		}
		run.PushSegment(segment)
	}

	return run, nil
}

// SaveAsBytes encodes the run. The output is deterministic for equal runs.
func SaveAsBytes(run *models.Run) ([]byte, error) {
	doc := lssRun{
		Version:      lssVersion,
		GameName:     run.GameName,
		CategoryName: run.CategoryName,
		Offset:       run.Offset.String(),
		AttemptCount: run.AttemptCount,
	}
	doc.Metadata.Run.ID = run.Metadata.RunID
	doc.Metadata.Platform.Value = run.Metadata.Platform
	doc.Metadata.Platform.UsesEmulator = formatBool(run.Metadata.UsesEmulator)
	doc.Metadata.Region = run.Metadata.Region
	for _, v := range run.Metadata.Variables {
		doc.Metadata.Variables.Items = append(doc.Metadata.Variables.Items, lssVariable{Name: v.Name, Value: v.Value})
	}

	for _, a := range run.Attempts {
		doc.AttemptHistory.Items = append(doc.AttemptHistory.Items, encodeAttempt(a))
	}

	for _, s := range run.Segments {
		seg := lssSegment{
			Name:            s.Name,
			BestSegmentTime: encodeTime(s.BestSegmentTime),
		}
		seg.SplitTimes.Items = append(seg.SplitTimes.Items, lssSplitTime{
			Name:    models.PersonalBestComparison,
			lssTime: encodeTime(s.PersonalBestSplitTime),
		})
		for _, name := range run.CustomComparisons {
			seg.SplitTimes.Items = append(seg.SplitTimes.Items, lssSplitTime{
				Name:    name,
				lssTime: encodeTime(s.Comparisons[name]),
			})
		}
		doc.Segments.Items = append(doc.Segments.Items, seg)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode splits: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// SaveAsText is SaveAsBytes for callers that need a string.
func SaveAsText(run *models.Run) (string, error) {
	b, err := SaveAsBytes(run)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeTime(t lssTime) (models.Time, error) {
	realTime, err := parseOptional(t.RealTime)
	if err != nil {
		return models.Time{}, fmt.Errorf("real time: %w", err)
	}
	gameTime, err := parseOptional(t.GameTime)
	if err != nil {
		return models.Time{}, fmt.Errorf("game time: %w", err)
	}
	return models.Time{RealTime: realTime, GameTime: gameTime}, nil
}

func encodeTime(t models.Time) lssTime {
	var out lssTime
	if t.RealTime != nil {
		out.RealTime = t.RealTime.String()
	}
	if t.GameTime != nil {
		out.GameTime = t.GameTime.String()
	}
	return out
}

func decodeAttempt(a lssAttempt) (models.Attempt, error) {
	t, err := decodeTime(a.lssTime)
	if err != nil {
		return models.Attempt{}, err
	}
	attempt := models.Attempt{ID: a.ID, Time: t}
	if attempt.Started, err = parseDate(a.Started); err != nil {
		return models.Attempt{}, err
	}
	if attempt.Ended, err = parseDate(a.Ended); err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

func encodeAttempt(a models.Attempt) lssAttempt {
	out := lssAttempt{ID: a.ID, lssTime: encodeTime(a.Time)}
	if a.Started != nil {
		out.Started = a.Started.UTC().Format(attemptDateFmt)
		out.IsStartedSynced = "True"
	}
	if a.Ended != nil {
		out.Ended = a.Ended.UTC().Format(attemptDateFmt)
		out.IsEndedSynced = "True"
	}
	return out
}

func parseOptional(s string) (*timespan.TimeSpan, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := timespan.Parse(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(attemptDateFmt, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", s, err)
	}
	return &t, nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.ToLower(s))
	return b
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Package layout holds the persisted description of what the timer display
// shows: an ordered list of components, each with its own settings.
package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalid is returned when data is not a layout.
var ErrInvalid = errors.New("not a layout")

// Kind names a component type.
type Kind string

const (
	KindCurrentComparison Kind = "CurrentComparison"
	KindCurrentPace       Kind = "CurrentPace"
	KindDelta             Kind = "Delta"
	KindDetailedTimer     Kind = "DetailedTimer"
	KindGraph             Kind = "Graph"
	KindPossibleTimeSave  Kind = "PossibleTimeSave"
	KindPreviousSegment   Kind = "PreviousSegment"
	KindSplits            Kind = "Splits"
	KindSumOfBest         Kind = "SumOfBest"
	KindText              Kind = "Text"
	KindTimer             Kind = "Timer"
	KindTitle             Kind = "Title"
	KindTotalPlaytime     Kind = "TotalPlaytime"
)

var kinds = map[Kind]bool{
	KindCurrentComparison: true,
	KindCurrentPace:       true,
	KindDelta:             true,
	KindDetailedTimer:     true,
	KindGraph:             true,
	KindPossibleTimeSave:  true,
	KindPreviousSegment:   true,
	KindSplits:            true,
	KindSumOfBest:         true,
	KindText:              true,
	KindTimer:             true,
	KindTitle:             true,
	KindTotalPlaytime:     true,
}

// Valid reports whether k is a known component type.
func (k Kind) Valid() bool {
	return kinds[k]
}

// Component is one entry of a layout. It is encoded as a single-key object
// mapping the kind to its settings.
type Component struct {
	Kind     Kind
	Settings json.RawMessage
}

// NewComponent returns a component of the given kind with default settings.
func NewComponent(kind Kind) Component {
	return Component{Kind: kind, Settings: json.RawMessage(`{}`)}
}

func (c Component) MarshalJSON() ([]byte, error) {
	settings := c.Settings
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	return json.Marshal(map[Kind]json.RawMessage{c.Kind: settings})
}

func (c *Component) UnmarshalJSON(data []byte) error {
	var m map[Kind]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(m) != 1 {
		return fmt.Errorf("%w: component must have exactly one kind", ErrInvalid)
	}
	for kind, settings := range m {
		if !kind.Valid() {
			return fmt.Errorf("%w: unknown component %q", ErrInvalid, kind)
		}
		c.Kind = kind
		c.Settings = bytes.Clone(settings)
	}
	return nil
}

// Layout is an ordered list of components plus general display settings.
type Layout struct {
	Components []Component     `json:"components"`
	General    json.RawMessage `json:"general,omitempty"`
}

// Default returns the layout used when none is stored.
func Default() *Layout {
	return &Layout{
		Components: []Component{
			NewComponent(KindTitle),
			NewComponent(KindSplits),
			NewComponent(KindTimer),
			NewComponent(KindPreviousSegment),
		},
	}
}

// Parse reads the settings JSON of a layout.
func Parse(data []byte) (*Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if l.Components == nil {
		return nil, fmt.Errorf("%w: missing components", ErrInvalid)
	}
	return &l, nil
}

// SettingsJSON encodes the layout in the form Parse reads.
func (l *Layout) SettingsJSON() (json.RawMessage, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode layout: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy.
func (l *Layout) Clone() *Layout {
	c := &Layout{
		Components: make([]Component, len(l.Components)),
		General:    bytes.Clone(l.General),
	}
	for i, comp := range l.Components {
		c.Components[i] = Component{Kind: comp.Kind, Settings: bytes.Clone(comp.Settings)}
	}
	return c
}

// Kinds lists the component kinds in order.
func (l *Layout) Kinds() []Kind {
	out := make([]Kind, len(l.Components))
	for i, c := range l.Components {
		out[i] = c.Kind
	}
	return out
}

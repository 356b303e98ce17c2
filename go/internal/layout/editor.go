package layout

import "errors"

// ErrEmptyLayout is returned when an editor is opened on a layout without
// components.
var ErrEmptyLayout = errors.New("layout has no components")

// EditorState describes the editor for display.
type EditorState struct {
	Components        []Kind `json:"components"`
	SelectedComponent int    `json:"selected_component"`
}

// Editor edits a private copy of a layout. Operations that cannot apply
// are ignored. The layout always keeps at least one component.
type Editor struct {
	layout   *Layout
	selected int
}

func NewEditor(l *Layout) (*Editor, error) {
	if len(l.Components) == 0 {
		return nil, ErrEmptyLayout
	}
	return &Editor{layout: l.Clone()}, nil
}

func (e *Editor) State() EditorState {
	return EditorState{
		Components:        e.layout.Kinds(),
		SelectedComponent: e.selected,
	}
}

func (e *Editor) Select(i int) {
	if i >= 0 && i < len(e.layout.Components) {
		e.selected = i
	}
}

// AddComponent inserts a component below the selected one and selects it.
func (e *Editor) AddComponent(kind Kind) bool {
	if !kind.Valid() {
		return false
	}
	at := e.selected + 1
	comps := e.layout.Components
	comps = append(comps, Component{})
	copy(comps[at+1:], comps[at:])
	comps[at] = NewComponent(kind)
	e.layout.Components = comps
	e.selected = at
	return true
}

func (e *Editor) RemoveComponent() {
	comps := e.layout.Components
	if len(comps) <= 1 {
		return
	}
	e.layout.Components = append(comps[:e.selected], comps[e.selected+1:]...)
	if e.selected >= len(e.layout.Components) {
		e.selected = len(e.layout.Components) - 1
	}
}

func (e *Editor) MoveComponentUp() {
	if e.selected == 0 {
		return
	}
	comps := e.layout.Components
	comps[e.selected-1], comps[e.selected] = comps[e.selected], comps[e.selected-1]
	e.selected--
}

func (e *Editor) MoveComponentDown() {
	comps := e.layout.Components
	if e.selected >= len(comps)-1 {
		return
	}
	comps[e.selected+1], comps[e.selected] = comps[e.selected], comps[e.selected+1]
	e.selected++
}

// Close ends the edit and hands back the edited layout. The editor must not
// be used afterwards.
func (e *Editor) Close() *Layout {
	l := e.layout
	e.layout = nil
	return l
}

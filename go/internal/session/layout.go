package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/splitkeeper/go/internal/layout"
	"github.com/mcdev12/splitkeeper/go/internal/storage"
)

const layoutFileName = "layout.ls1l"

// Layout returns a copy of the current layout.
func (s *Session) Layout() *layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.Clone()
}

func (s *Session) LayoutWidth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layoutWidth
}

// SetLayoutWidth changes the display width and queues saving it.
func (s *Session) SetLayoutWidth(width int) {
	s.mu.Lock()
	s.layoutWidth = width
	s.mu.Unlock()

	s.queue.Enqueue(storage.Job{
		Name:    "save layout width",
		Failure: MsgSaveSettingsFailed,
		Run: func(ctx context.Context) error {
			return s.store.StoreLayoutWidth(ctx, width)
		},
	})
}

// SaveLayout queues a write of the current layout.
func (s *Session) SaveLayout() error {
	settings, err := s.Layout().SettingsJSON()
	if err != nil {
		s.notifier.Error(MsgSaveLayoutFailed, err)
		return err
	}
	s.queue.Enqueue(storage.Job{
		Name:    "save layout",
		Failure: MsgSaveLayoutFailed,
		Run: func(ctx context.Context) error {
			return s.store.StoreLayout(ctx, settings)
		},
	})
	return nil
}

// ImportLayout replaces the current layout with parsed layout settings.
func (s *Session) ImportLayout(data []byte) error {
	l, err := layout.Parse(data)
	if err != nil {
		s.notifier.Error(MsgLayoutInvalid, err)
		return err
	}
	s.mu.Lock()
	s.layout = l
	s.mu.Unlock()
	return nil
}

// ExportLayout encodes the current layout for a file.
func (s *Session) ExportLayout() (name string, data []byte, err error) {
	data, err = json.MarshalIndent(s.Layout(), "", "    ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode layout: %w", err)
	}
	return layoutFileName, data, nil
}

// OpenLayoutEditor starts editing a copy of the current layout.
func (s *Session) OpenLayoutEditor() (*layout.Editor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layoutEditor != nil || s.runEditor != nil {
		return nil, ErrEditorOpen
	}
	editor, err := layout.NewEditor(s.layout)
	if err != nil {
		return nil, err
	}
	s.layoutEditor = editor
	return editor, nil
}

// CloseLayoutEditor ends the edit. With save set the edited layout becomes
// the current one; otherwise it is discarded.
func (s *Session) CloseLayoutEditor(save bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layoutEditor == nil {
		return ErrNoEditor
	}
	edited := s.layoutEditor.Close()
	s.layoutEditor = nil
	if save {
		s.layout = edited
	}
	return nil
}

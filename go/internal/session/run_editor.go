package session

import (
	"errors"

	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

// RunEditor holds a private copy of the run while it is being edited. The
// timer keeps running on its own copy until the editor is closed.
type RunEditor struct {
	run *models.Run
}

// Run returns the run under edit. The caller may modify it until the editor
// is closed.
func (e *RunEditor) Run() *models.Run {
	return e.run
}

// OpenRunEditor starts editing a copy of the current run. Runs cannot be
// edited during an attempt.
func (s *Session) OpenRunEditor() (*RunEditor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runEditor != nil || s.layoutEditor != nil {
		return nil, ErrEditorOpen
	}

	run := timer.ReadWith(s.shared, func(t *timer.Timer) *models.Run {
		if t.CurrentPhase() != models.TimerPhaseNotRunning {
			return nil
		}
		return t.CloneRun()
	})
	if run == nil {
		s.notifier.Error(MsgTimerRunning, ErrTimerRunning)
		return nil, ErrTimerRunning
	}

	s.runEditor = &RunEditor{run: run}
	return s.runEditor, nil
}

// CloseRunEditor ends the edit. With save set the edited run replaces the
// timer's run; otherwise it is dropped. An edited run the timer rejects is
// reported and the editor stays closed.
func (s *Session) CloseRunEditor(save bool) error {
	s.mu.Lock()
	editor := s.runEditor
	s.runEditor = nil
	s.mu.Unlock()

	if editor == nil {
		return ErrNoEditor
	}
	run := editor.run
	editor.run = nil
	if !save {
		return nil
	}
	if err := s.setRun(run); err != nil {
		if errors.Is(err, ErrTimerRunning) {
			s.notifier.Error(MsgTimerRunning, err)
		} else {
			s.notifier.Error(MsgEmptySplits, err)
		}
		return err
	}
	return nil
}

// Package notify carries transient user-facing messages such as "Connected
// to server" or a failed upload. They never stop the process.
package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a single user-facing message.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Err     string `json:"error,omitempty"`
}

// Notifier surfaces messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string, err error)
}

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Info(msg string) {
	log.Info().Str("notification", msg).Msg("notify")
}

func (LogNotifier) Error(msg string, err error) {
	log.Error().Err(err).Str("notification", msg).Msg("notify")
}

// Recorder keeps every notification in memory. It backs the state endpoint
// and tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	next  Notifier
}

// NewRecorder returns a Recorder that also forwards to next when non-nil.
func NewRecorder(next Notifier) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Info(msg string) {
	r.add(Notification{Level: LevelInfo, Message: msg})
	if r.next != nil {
		r.next.Info(msg)
	}
}

func (r *Recorder) Error(msg string, err error) {
	n := Notification{Level: LevelError, Message: msg}
	if err != nil {
		n.Err = err.Error()
	}
	r.add(n)
	if r.next != nil {
		r.next.Error(msg, err)
	}
}

func (r *Recorder) add(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Messages returns the recorded message texts in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Message)
	}
	return out
}

// Recent returns up to n of the most recent notifications.
func (r *Recorder) Recent(n int) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.items) {
		n = len(r.items)
	}
	return append([]Notification(nil), r.items[len(r.items)-n:]...)
}

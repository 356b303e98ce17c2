package controlapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/splitkeeper/go/internal/notify"
	"github.com/mcdev12/splitkeeper/go/internal/splits"
	"github.com/mcdev12/splitkeeper/go/internal/timer"
)

// StateHandler serves the timer state and the stored runs as plain JSON
// for clients that do not speak connect.
type StateHandler struct {
	shared        *timer.SharedTimer
	splits        SplitsLister
	notifications NotificationSource
}

// NotificationSource returns the most recent user-facing notifications.
type NotificationSource interface {
	Recent(n int) []notify.Notification
}

// maxNotifications caps the notifications endpoint.
const maxNotifications = 50

func NewStateHandler(shared *timer.SharedTimer, lister SplitsLister, notifications NotificationSource) *StateHandler {
	return &StateHandler{
		shared:        shared,
		splits:        lister,
		notifications: notifications,
	}
}

// HandleGetState handles GET /api/timer/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	logRequest(r)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := timer.ReadWith(h.shared, (*timer.Timer).Snapshot)
	writeJSON(w, snap)
}

// HandleListSplits handles GET /api/splits
func (h *StateHandler) HandleListSplits(w http.ResponseWriter, r *http.Request) {
	logRequest(r)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos, err := h.splits.GetSplitsInfos(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list splits")
		http.Error(w, "Failed to list splits", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []splits.KeyedInfo{}
	}
	writeJSON(w, infos)
}

// HandleNotifications handles GET /api/notifications
func (h *StateHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	logRequest(r)
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items := []notify.Notification{}
	if h.notifications != nil {
		items = append(items, h.notifications.Recent(maxNotifications)...)
	}
	writeJSON(w, items)
}

func (h *StateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/timer/state", h.HandleGetState)
	mux.HandleFunc("/api/splits", h.HandleListSplits)
	mux.HandleFunc("/api/notifications", h.HandleNotifications)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

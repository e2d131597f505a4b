package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/choregame/internal/push"
	"github.com/dukerupert/choregame/internal/store"
)

// PushHandler manages device tokens and per-game notification settings.
type PushHandler struct {
	users          *store.UserStore
	games          *store.GameStore
	sender         push.Sender
	vapidPublicKey string
	logger         *slog.Logger
}

func NewPushHandler(users *store.UserStore, games *store.GameStore, sender push.Sender, vapidPublicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{users: users, games: games, sender: sender, vapidPublicKey: vapidPublicKey, logger: logger}
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "web push not configured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapidPublicKey})
}

// SetDeviceToken handles PUT /api/users/{id}/device-token
func (h *PushHandler) SetDeviceToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Token = strings.TrimSpace(req.Token)

	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("get user", "user_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get user"})
		return
	}
	if u == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	if err := h.users.SetDeviceToken(r.Context(), id, req.Token); err != nil {
		h.logger.Error("set device token", "user_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save device token"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type playerNotificationsRequest struct {
	EventNotifications bool   `json:"event_notifications"`
	DeviceToken        string `json:"device_token"`
}

// UpdatePlayerNotifications handles PUT /api/games/{game_id}/players/{user_id}/notifications
func (h *PushHandler) UpdatePlayerNotifications(w http.ResponseWriter, r *http.Request) {
	gameID, err := parsePathID(r, "game_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid game id"})
		return
	}
	userID, err := parsePathID(r, "user_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}

	var req playerNotificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	p, err := h.games.GetPlayer(r.Context(), gameID, userID)
	if err != nil {
		h.logger.Error("get player", "game_id", gameID, "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get player"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "player not found"})
		return
	}

	err = h.games.SetPlayerNotifications(r.Context(), gameID, userID, req.EventNotifications, strings.TrimSpace(req.DeviceToken))
	if err != nil {
		h.logger.Error("set player notifications", "game_id", gameID, "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update notifications"})
		return
	}

	p, err = h.games.GetPlayer(r.Context(), gameID, userID)
	if err != nil || p == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reload player"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// TestNotification handles POST /api/users/{id}/push-test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get user"})
		return
	}
	if u == nil || u.DeviceToken == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no device token registered"})
		return
	}

	err = h.sender.Send(r.Context(), push.Message{
		Token: u.DeviceToken,
		Title: "Test Notification",
		Body:  "Push notifications are working!",
		Badge: u.Badge,
	})
	switch {
	case errors.Is(err, push.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push not configured"})
	case errors.Is(err, push.ErrExpired):
		if err := h.users.SetDeviceToken(r.Context(), id, ""); err != nil {
			h.logger.Error("clear expired device token", "user_id", id, "error", err)
		}
		writeJSON(w, http.StatusGone, map[string]string{"error": "device token expired"})
	case err != nil:
		h.logger.Error("test push send", "user_id", id, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "push delivery failed"})
	default:
		writeJSON(w, http.StatusOK, map[string]int{"sent": 1})
	}
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/choregame/internal/game"
	"github.com/dukerupert/choregame/internal/model"
	"github.com/dukerupert/choregame/internal/store"
)

type GameHandler struct {
	svc        *game.Service
	events     *store.EventStore
	challenges *store.ChallengeStore
	mail       *store.MailStore
	logger     *slog.Logger
}

func NewGameHandler(svc *game.Service, events *store.EventStore, challenges *store.ChallengeStore, mail *store.MailStore, logger *slog.Logger) *GameHandler {
	return &GameHandler{svc: svc, events: events, challenges: challenges, mail: mail, logger: logger}
}

type completeRequest struct {
	UserID    int64  `json:"user_id"`
	BeforePic string `json:"before_pic"`
	AfterPic  string `json:"after_pic"`
}

// CompleteTask handles POST /api/games/{game_id}/tasks/{task_id}/complete
func (h *GameHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	gameID, err := parsePathID(r, "game_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid game id"})
		return
	}
	taskID, err := parsePathID(r, "task_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	event, err := h.svc.CompleteTask(r.Context(), game.CompleteTaskInput{
		UserID:    req.UserID,
		GameID:    gameID,
		TaskID:    taskID,
		BeforePic: req.BeforePic,
		AfterPic:  req.AfterPic,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /api/tasks/{id}/events
func (h *GameHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	taskID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	events, err := h.events.ListByTask(r.Context(), taskID)
	if err != nil {
		h.logger.Error("list events", "task_id", taskID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type challengeRequest struct {
	GameID         int64  `json:"game_id"`
	ChallengerID   int64  `json:"challenger_id"`
	CommissionerID int64  `json:"commissioner_id"`
	Description    string `json:"description"`
}

// CreateChallenge handles POST /api/events/{id}/challenges
func (h *GameHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	c, err := h.svc.CreateChallenge(r.Context(), game.CreateChallengeInput{
		EventID:        eventID,
		GameID:         req.GameID,
		ChallengerID:   req.ChallengerID,
		CommissionerID: req.CommissionerID,
		Description:    req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListChallenges handles GET /api/events/{id}/challenges
func (h *GameHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	eventID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	challenges, err := h.challenges.ListByEvent(r.Context(), eventID)
	if err != nil {
		h.logger.Error("list challenges", "event_id", eventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list challenges"})
		return
	}
	if challenges == nil {
		challenges = []model.Challenge{}
	}
	writeJSON(w, http.StatusOK, challenges)
}

// DecideChallenge handles PUT /api/challenges/{id}
func (h *GameHandler) DecideChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	c, err := h.svc.DecideChallenge(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListMail handles GET /api/users/{id}/mail
func (h *GameHandler) ListMail(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	mail, err := h.mail.ListByRecipient(r.Context(), userID)
	if err != nil {
		h.logger.Error("list mail", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list mail"})
		return
	}
	if mail == nil {
		mail = []model.Mail{}
	}
	writeJSON(w, http.StatusOK, mail)
}

type addPlayersRequest struct {
	Emails         []string `json:"emails"`
	CommissionerID int64    `json:"commissioner_id"`
}

// AddPlayers handles POST /api/games/{id}/players
func (h *GameHandler) AddPlayers(w http.ResponseWriter, r *http.Request) {
	gameID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req addPlayersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	invitees := make([]game.Invitee, len(req.Emails))
	for i, e := range req.Emails {
		invitees[i] = game.Invitee{Email: e}
	}

	players, err := h.svc.AddPlayers(r.Context(), gameID, invitees, req.CommissionerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if players == nil {
		players = []model.Player{}
	}
	writeJSON(w, http.StatusOK, players)
}

type joinRequest struct {
	Password string `json:"password"`
}

// JoinGame handles POST /api/games/{game_id}/players/{user_id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
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

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	result, err := h.svc.JoinGame(r.Context(), gameID, userID, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// InitiationCheck handles GET /api/games/{id}/initiation
func (h *GameHandler) InitiationCheck(w http.ResponseWriter, r *http.Request) {
	gameID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	ready, err := h.svc.InitiationCheck(r.Context(), gameID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

// writeError maps game error kinds to HTTP status codes. Store failures are
// logged and reported without detail.
func (h *GameHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, game.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, game.ErrAlreadyDecided):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, game.ErrCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathID(r, "id")
}

func parsePathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

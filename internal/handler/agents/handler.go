package agents

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agenthall/agenthall/backend/internal/model/agent"
	"github.com/agenthall/agenthall/backend/internal/service/registry"
	"github.com/agenthall/agenthall/backend/pkg/utils"
)

// Handler serves the agent directory and its terminal sessions.
type Handler struct {
	registry *registry.Registry
}

// New creates the agents handler.
func New(reg *registry.Registry) *Handler {
	return &Handler{registry: reg}
}

// RegisterRoutes mounts the agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleList)
	r.Get("/agents/{agentID}", h.handleGet)
	r.Get("/agents/{agentID}/sessions", h.handleListSessions)
	r.Post("/agents/{agentID}/sessions", h.handleAddSession)
	r.Patch("/agents/{agentID}/sessions/{sessionID}", h.handleUpdateSession)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.registry.ListAll())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	a, ok := h.registry.Get(agentID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, a)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	sessions, err := h.registry.ActiveSessions(agentID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleAddSession(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var payload struct {
		SessionID string `json:"sessionId"`
		CastID    string `json:"castId"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	session, err := h.registry.AddSession(agentID, payload.SessionID, payload.CastID, payload.Name)
	switch {
	case errors.Is(err, registry.ErrSessionExists):
		utils.RespondError(w, http.StatusConflict, "session already registered")
		return
	case errors.Is(err, registry.ErrAgentNotFound):
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to register session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Name   *string `json:"name"`
		CastID *string `json:"castId"`
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := registry.SessionUpdate{Name: payload.Name, CastID: payload.CastID}
	if payload.Status != nil {
		status := agent.SessionStatus(*payload.Status)
		if status != agent.SessionActive && status != agent.SessionCompleted {
			utils.RespondError(w, http.StatusBadRequest, "status must be \"active\" or \"completed\"")
			return
		}
		update.Status = &status
	}

	session, err := h.registry.UpdateSession(agentID, sessionID, update)
	switch {
	case errors.Is(err, registry.ErrAgentNotFound):
		utils.RespondError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, registry.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	default:
		utils.RespondJSON(w, http.StatusOK, session)
	}
}

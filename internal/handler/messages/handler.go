package messages

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agenthall/agenthall/backend/internal/model/message"
	"github.com/agenthall/agenthall/backend/internal/service/bus"
	"github.com/agenthall/agenthall/backend/internal/store/messagelog"
	"github.com/agenthall/agenthall/backend/pkg/utils"
)

// Handler serves the channel log over HTTP. Writes flow through the bus so
// realtime subscribers see them too.
type Handler struct {
	bus *bus.Service
}

// New creates the messages handler.
func New(b *bus.Service) *Handler {
	return &Handler{bus: b}
}

// RegisterRoutes mounts the message routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.handleLatest)
	r.Post("/messages", h.handleSend)
	r.Get("/messages/since/{timestamp}", h.handleSince)
	r.Get("/messages/{messageID:[0-9]+}", h.handleGet)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	msgs, err := h.bus.Latest(r.Context(), limit, r.URL.Query().Get("channel"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Sender     string `json:"sender"`
		SenderType string `json:"senderType"`
		Content    string `json:"content"`
		Channel    string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.bus.Send(r.Context(), payload.Sender, message.SenderType(payload.SenderType), payload.Content, payload.Channel)
	switch {
	case errors.Is(err, bus.ErrValidation), errors.Is(err, messagelog.ErrInvalid):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to store message")
	default:
		utils.RespondJSON(w, http.StatusOK, msg)
	}
}

func (h *Handler) handleSince(w http.ResponseWriter, r *http.Request) {
	ts, err := parseCursor(chi.URLParam(r, "timestamp"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "timestamp must be RFC3339")
		return
	}

	msgs, err := h.bus.Since(r.Context(), ts, r.URL.Query().Get("channel"))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	utils.RespondJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := h.bus.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, messagelog.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "message not found")
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to fetch message")
	default:
		utils.RespondJSON(w, http.StatusOK, msg)
	}
}

// parseCursor accepts both second- and nanosecond-resolution RFC3339 cursors,
// since clients echo back whatever timestamp precision they last saw.
func parseCursor(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, raw)
}

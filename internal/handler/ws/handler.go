package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agenthall/agenthall/backend/internal/model/message"
	"github.com/agenthall/agenthall/backend/internal/service/bus"
)

const writeTimeout = 10 * time.Second

// Handler upgrades observers onto the realtime channel feed. The protocol is
// one-way: a history snapshot on connect, then one message event per append.
// Clients send nothing; message writes go through the HTTP or tool paths.
type Handler struct {
	bus      *bus.Service
	upgrader websocket.Upgrader
}

// New creates the realtime handler.
func New(b *bus.Service) *Handler {
	return &Handler{
		bus: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleConnect)
}

type historyEvent struct {
	Type     string            `json:"type"`
	Messages []message.Message `json:"messages"`
}

type messageEvent struct {
	Type    string          `json:"type"`
	Message message.Message `json:"message"`
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub, err := h.bus.Subscribe(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		log.Printf("[ws] subscribe failed: %v", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeTimeout))
		return
	}
	defer sub.Cancel()

	if err := writeEvent(conn, historyEvent{Type: "history", Messages: sub.History}); err != nil {
		log.Printf("[ws] subscriber %s: history write failed: %v", sub.ID, err)
		return
	}

	// Drain the client side only to notice disconnects; inbound frames
	// carry no protocol.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Cancel()
				return
			}
		}
	}()

	for msg := range sub.C {
		if err := writeEvent(conn, messageEvent{Type: "message", Message: msg}); err != nil {
			log.Printf("[ws] subscriber %s: write failed, dropping: %v", sub.ID, err)
			return
		}
	}

	// The feed closed underneath us: either the bus dropped a lagging
	// subscriber or the server is shutting down. Say goodbye cleanly.
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
		time.Now().Add(writeTimeout))
}

func writeEvent(conn *websocket.Conn, payload any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}

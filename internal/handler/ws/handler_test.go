package ws

import (
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/agenthall/agenthall/backend/internal/model/message"
	"github.com/agenthall/agenthall/backend/internal/service/bus"
	"github.com/agenthall/agenthall/backend/internal/store/messagelog"
)

type event struct {
	Type     string            `json:"type"`
	Messages []message.Message `json:"messages"`
	Message  message.Message   `json:"message"`
}

func setupServer(t *testing.T) (*httptest.Server, *bus.Service) {
	t.Helper()
	store, err := messagelog.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	b := bus.NewService(store, 0)
	t.Cleanup(b.Close)

	r := chi.NewRouter()
	New(b).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, b
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event err: %v", err)
	}
	return ev
}

func TestConnectReceivesHistoryFirst(t *testing.T) {
	srv, b := setupServer(t)

	if _, err := b.Send(t.Context(), "alice", message.SenderHuman, "before connect", ""); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	conn := dial(t, srv, "")

	ev := readEvent(t, conn)
	if ev.Type != "history" {
		t.Fatalf("first event must be history, got %q", ev.Type)
	}
	if len(ev.Messages) != 1 || ev.Messages[0].Content != "before connect" {
		t.Fatalf("unexpected history: %+v", ev.Messages)
	}
}

func TestHistoryThenLiveEventsInOrder(t *testing.T) {
	srv, b := setupServer(t)
	conn := dial(t, srv, "")

	ev := readEvent(t, conn)
	if ev.Type != "history" || len(ev.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", ev)
	}

	const sends = 5
	for i := 0; i < sends; i++ {
		if _, err := b.Send(t.Context(), "bob-agent", message.SenderAgent, fmt.Sprintf("live-%d", i), ""); err != nil {
			t.Fatalf("Send %d err: %v", i, err)
		}
	}

	var lastID int64
	for i := 0; i < sends; i++ {
		ev := readEvent(t, conn)
		if ev.Type != "message" {
			t.Fatalf("event %d: expected message, got %q", i, ev.Type)
		}
		if ev.Message.Content != fmt.Sprintf("live-%d", i) {
			t.Fatalf("event %d out of order: %q", i, ev.Message.Content)
		}
		if ev.Message.ID <= lastID {
			t.Fatalf("event %d: id %d not increasing", i, ev.Message.ID)
		}
		lastID = ev.Message.ID
	}
}

func TestSubscriberFollowsRequestedChannel(t *testing.T) {
	srv, b := setupServer(t)
	conn := dial(t, srv, "?channel=side")

	ev := readEvent(t, conn)
	if ev.Type != "history" {
		t.Fatalf("expected history, got %q", ev.Type)
	}

	if _, err := b.Send(t.Context(), "alice", message.SenderHuman, "public noise", ""); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if _, err := b.Send(t.Context(), "alice", message.SenderHuman, "side note", "side"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	ev = readEvent(t, conn)
	if ev.Message.Content != "side note" {
		t.Fatalf("received another channel's message: %q", ev.Message.Content)
	}
}

func TestDisconnectLeavesOthersDelivering(t *testing.T) {
	srv, b := setupServer(t)

	leaver := dial(t, srv, "")
	stayer := dial(t, srv, "")
	readEvent(t, leaver)
	readEvent(t, stayer)

	_ = leaver.Close()

	if _, err := b.Send(t.Context(), "alice", message.SenderHuman, "still here", ""); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	ev := readEvent(t, stayer)
	if ev.Type != "message" || ev.Message.Content != "still here" {
		t.Fatalf("remaining subscriber missed delivery: %+v", ev)
	}
}

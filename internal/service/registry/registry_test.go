package registry_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/agenthall/agenthall/backend/internal/model/agent"
	"github.com/agenthall/agenthall/backend/internal/service/registry"
)

func TestRegisterDerivesID(t *testing.T) {
	reg := registry.New()

	a := reg.Register("worker1", agent.KindClaude, "")
	if a.ID != "claude-worker1" {
		t.Fatalf("unexpected id: %s", a.ID)
	}
	if a.Status != agent.StatusStarting {
		t.Fatalf("expected starting status, got %s", a.Status)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := registry.New()

	reg.Register("worker1", agent.KindClaude, "container-a")
	if _, err := reg.AddSession("claude-worker1", "sess-1", "", ""); err != nil {
		t.Fatalf("AddSession err: %v", err)
	}

	again := reg.Register("worker1", agent.KindClaude, "container-b")
	if again.ContainerID != "container-b" {
		t.Fatalf("expected refreshed container id, got %s", again.ContainerID)
	}
	if len(again.Sessions) != 1 {
		t.Fatalf("re-registration must keep sessions, got %d", len(again.Sessions))
	}
	if len(reg.ListAll()) != 1 {
		t.Fatalf("expected exactly one agent, got %d", len(reg.ListAll()))
	}
}

func TestRegisterConcurrently(t *testing.T) {
	reg := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Register("worker1", agent.KindClaude, "container-a")
		}()
	}
	wg.Wait()

	all := reg.ListAll()
	if len(all) != 1 {
		t.Fatalf("expected exactly one agent, got %d", len(all))
	}
	if all[0].ID != "claude-worker1" {
		t.Fatalf("unexpected id: %s", all[0].ID)
	}
}

func TestSetStatusUnknownAgentIsNoop(t *testing.T) {
	reg := registry.New()

	reg.SetStatus("codex-ghost", agent.StatusRunning)
	if len(reg.ListAll()) != 0 {
		t.Fatal("SetStatus on unknown agent must not create one")
	}
}

func TestSetStatusStampsStartedAtOnce(t *testing.T) {
	reg := registry.New()
	reg.Register("worker1", agent.KindCodex, "")

	reg.SetStatus("codex-worker1", agent.StatusRunning)
	a, _ := reg.Get("codex-worker1")
	started := a.StartedAt
	if started.IsZero() {
		t.Fatal("expected StartedAt on first running transition")
	}

	reg.SetStatus("codex-worker1", agent.StatusStopped)
	reg.SetStatus("codex-worker1", agent.StatusRunning)
	a, _ = reg.Get("codex-worker1")
	if !a.StartedAt.Equal(started) {
		t.Fatal("StartedAt must not move on later transitions")
	}
}

func TestAddSessionUnknownAgent(t *testing.T) {
	reg := registry.New()

	_, err := reg.AddSession("claude-ghost", "sess-1", "", "")
	if !errors.Is(err, registry.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
	if len(reg.ListAll()) != 0 {
		t.Fatal("failed AddSession must not mutate the registry")
	}
}

func TestAddSessionRejectsDuplicate(t *testing.T) {
	reg := registry.New()
	reg.Register("worker1", agent.KindClaude, "")

	if _, err := reg.AddSession("claude-worker1", "sess-1", "", ""); err != nil {
		t.Fatalf("AddSession err: %v", err)
	}
	_, err := reg.AddSession("claude-worker1", "sess-1", "cast-9", "renamed")
	if !errors.Is(err, registry.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	a, _ := reg.Get("claude-worker1")
	if len(a.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(a.Sessions))
	}
	if a.Sessions[0].CastID != "" || a.Sessions[0].Name != "" {
		t.Fatal("duplicate AddSession must not overwrite the existing session")
	}
}

func TestUpdateSessionMergesFields(t *testing.T) {
	reg := registry.New()
	reg.Register("worker1", agent.KindClaude, "container-a")
	if _, err := reg.AddSession("claude-worker1", "sess-1", "", "initial"); err != nil {
		t.Fatalf("AddSession err: %v", err)
	}

	castID := "cast-42"
	completed := agent.SessionCompleted
	updated, err := reg.UpdateSession("claude-worker1", "sess-1", registry.SessionUpdate{
		CastID: &castID,
		Status: &completed,
	})
	if err != nil {
		t.Fatalf("UpdateSession err: %v", err)
	}
	if updated.CastID != "cast-42" {
		t.Fatalf("cast id not merged: %q", updated.CastID)
	}
	if updated.Status != agent.SessionCompleted {
		t.Fatalf("status not merged: %q", updated.Status)
	}
	if updated.Name != "initial" {
		t.Fatalf("untouched field changed: %q", updated.Name)
	}

	if _, err := reg.UpdateSession("claude-worker1", "missing", registry.SessionUpdate{}); !errors.Is(err, registry.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := reg.UpdateSession("claude-ghost", "sess-1", registry.SessionUpdate{}); !errors.Is(err, registry.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestActiveSessionsFiltersCompleted(t *testing.T) {
	reg := registry.New()
	reg.Register("worker1", agent.KindClaude, "container-a")
	if _, err := reg.AddSession("claude-worker1", "sess-1", "", ""); err != nil {
		t.Fatalf("AddSession err: %v", err)
	}
	if _, err := reg.AddSession("claude-worker1", "sess-2", "", ""); err != nil {
		t.Fatalf("AddSession err: %v", err)
	}

	completed := agent.SessionCompleted
	if _, err := reg.UpdateSession("claude-worker1", "sess-1", registry.SessionUpdate{Status: &completed}); err != nil {
		t.Fatalf("UpdateSession err: %v", err)
	}

	active, err := reg.ActiveSessions("claude-worker1")
	if err != nil {
		t.Fatalf("ActiveSessions err: %v", err)
	}
	if len(active) != 1 || active[0].ID != "sess-2" {
		t.Fatalf("unexpected active sessions: %+v", active)
	}

	// The completed session stays in the agent's history.
	a, _ := reg.Get("claude-worker1")
	if len(a.Sessions) != 2 {
		t.Fatalf("history must keep completed sessions, got %d", len(a.Sessions))
	}
}

func TestHasSession(t *testing.T) {
	reg := registry.New()
	reg.Register("worker1", agent.KindClaude, "container-a")
	if _, err := reg.AddSession("claude-worker1", "sess-1", "", ""); err != nil {
		t.Fatalf("AddSession err: %v", err)
	}

	if !reg.HasSession("claude-worker1", "sess-1") {
		t.Fatal("expected session to be tracked")
	}
	if reg.HasSession("claude-worker1", "sess-2") {
		t.Fatal("unexpected session match")
	}
	if reg.HasSession("claude-ghost", "sess-1") {
		t.Fatal("unknown agent must not match")
	}
}

func TestListAllReturnsSnapshots(t *testing.T) {
	reg := registry.New()
	reg.Register("worker1", agent.KindClaude, "container-a")

	snapshot := reg.ListAll()
	snapshot[0].Sessions = append(snapshot[0].Sessions, agent.TerminalSession{ID: "forged"})

	a, _ := reg.Get("claude-worker1")
	if len(a.Sessions) != 0 {
		t.Fatal("mutating a snapshot must not touch the registry")
	}
}

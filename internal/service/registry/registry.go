package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agenthall/agenthall/backend/internal/model/agent"
)

var (
	ErrAgentNotFound   = errors.New("agent not found")
	ErrSessionNotFound = errors.New("terminal session not found")
	ErrSessionExists   = errors.New("terminal session already registered")
)

// SessionUpdate carries the fields a partial session update may change. Nil
// pointers leave the existing value untouched.
type SessionUpdate struct {
	Name   *string
	CastID *string
	Status *agent.SessionStatus
}

// Registry is the authoritative in-process directory of agents and their
// terminal sessions. Agents are keyed by derived id and never deleted; the
// reconciler and HTTP handlers mutate it only through the methods below, all
// of which take the single lock for the duration of the in-memory change and
// never across an external call.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*agent.Agent)}
}

// Register creates the agent if unseen and otherwise refreshes its container
// binding. Idempotent by derived id: re-registering never duplicates the
// agent and never discards accumulated sessions.
func (r *Registry) Register(name string, kind agent.Kind, containerID string) agent.Agent {
	id := agent.DeriveID(kind, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		a = &agent.Agent{
			ID:       id,
			Name:     name,
			Kind:     kind,
			Status:   agent.StatusStarting,
			Sessions: make([]agent.TerminalSession, 0, 4),
		}
		r.agents[id] = a
	}
	if containerID != "" {
		a.ContainerID = containerID
		if a.Status == agent.StatusStarting {
			a.Status = agent.StatusRunning
			if a.StartedAt.IsZero() {
				a.StartedAt = time.Now().UTC()
			}
		}
	}
	return a.Clone()
}

// Get returns a deep copy of the agent, if known.
func (r *Registry) Get(agentID string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok {
		return agent.Agent{}, false
	}
	return a.Clone(), true
}

// ListAll returns a snapshot copy of every agent, sorted by id so the
// dashboard sees a stable order across polls.
func (r *Registry) ListAll() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus records an observed lifecycle transition. An unknown agent id is
// a no-op rather than an error: the reconciler may observe a container before
// anything has registered it. The first transition into running stamps
// StartedAt.
func (r *Registry) SetStatus(agentID string, status agent.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return
	}
	a.Status = status
	if status == agent.StatusRunning && a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
}

// HasSession reports whether the agent already tracks the session id. The
// reconciler checks here before reading session metadata so repeated sweeps
// stay cheap.
func (r *Registry) HasSession(agentID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok {
		return false
	}
	for i := range a.Sessions {
		if a.Sessions[i].ID == sessionID {
			return true
		}
	}
	return false
}

// AddSession appends a newly observed terminal session to the agent. Session
// ids are unique per agent; registering one twice returns ErrSessionExists.
func (r *Registry) AddSession(agentID, sessionID, castID, name string) (agent.TerminalSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return agent.TerminalSession{}, ErrAgentNotFound
	}
	for i := range a.Sessions {
		if a.Sessions[i].ID == sessionID {
			return agent.TerminalSession{}, ErrSessionExists
		}
	}

	session := agent.TerminalSession{
		ID:        sessionID,
		AgentID:   agentID,
		Name:      name,
		CastID:    castID,
		StartedAt: time.Now().UTC(),
		Status:    agent.SessionActive,
	}
	a.Sessions = append(a.Sessions, session)
	return session, nil
}

// UpdateSession merges the non-nil fields of the update into the session.
func (r *Registry) UpdateSession(agentID, sessionID string, update SessionUpdate) (agent.TerminalSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[agentID]
	if !ok {
		return agent.TerminalSession{}, ErrAgentNotFound
	}
	for i := range a.Sessions {
		if a.Sessions[i].ID != sessionID {
			continue
		}
		if update.Name != nil {
			a.Sessions[i].Name = *update.Name
		}
		if update.CastID != nil {
			a.Sessions[i].CastID = *update.CastID
		}
		if update.Status != nil {
			a.Sessions[i].Status = *update.Status
		}
		return a.Sessions[i], nil
	}
	return agent.TerminalSession{}, ErrSessionNotFound
}

// ActiveSessions returns copies of the agent's sessions still marked active.
func (r *Registry) ActiveSessions(agentID string) ([]agent.TerminalSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	out := make([]agent.TerminalSession, 0, len(a.Sessions))
	for _, s := range a.Sessions {
		if s.Status == agent.SessionActive {
			out = append(out, s)
		}
	}
	return out, nil
}

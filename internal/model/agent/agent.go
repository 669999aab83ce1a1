package agent

import "time"

// Kind identifies which CLI wrapper an agent container runs.
type Kind string

const (
	KindClaude Kind = "claude"
	KindCodex  Kind = "codex"
)

// Valid reports whether the kind is one of the supported agent flavours.
func (k Kind) Valid() bool {
	return k == KindClaude || k == KindCodex
}

// Status describes the observed lifecycle state of an agent container.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// SessionStatus describes the lifecycle state of a terminal session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// DeriveID builds the registry key for an agent. Registration is idempotent
// precisely because the id is a pure function of (kind, name).
func DeriveID(kind Kind, name string) string {
	return string(kind) + "-" + name
}

// TerminalSession is one interactive process instance observed inside an
// agent's container. Sessions are appended when first seen and only ever
// status-transitioned afterwards, so the dashboard keeps full history.
type TerminalSession struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agentId"`
	Name      string        `json:"name,omitempty"`
	CastID    string        `json:"castId,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Status    SessionStatus `json:"status"`
}

// Agent is the registry's view of one coding agent and its terminal sessions.
type Agent struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Kind        Kind              `json:"type"`
	ContainerID string            `json:"containerId,omitempty"`
	Status      Status            `json:"status"`
	StartedAt   time.Time         `json:"startedAt,omitempty"`
	Sessions    []TerminalSession `json:"terminalSessions"`
}

// Clone returns a deep copy safe to hand out without holding the registry lock.
func (a Agent) Clone() Agent {
	out := a
	out.Sessions = append([]TerminalSession(nil), a.Sessions...)
	return out
}

// Package runtime observes the external container runtime the agents live in.
// Visibility is poll-only and best effort: everything here shells out to the
// docker CLI, and callers are expected to treat failures as a single stale
// tick rather than a hard fault.
package runtime

import "context"

// Labels the agent launcher stamps onto containers it starts.
const (
	LabelAgentName = "agent.name"
	LabelAgentType = "agent.type"
)

// Container is one observed container, labels included, in any state.
type Container struct {
	ID     string
	Name   string
	State  string
	Labels map[string]string
}

// Running reports whether the runtime considers the container live.
func (c Container) Running() bool {
	return c.State == "running"
}

// AgentName returns the agent.name label, if present.
func (c Container) AgentName() string {
	return c.Labels[LabelAgentName]
}

// AgentType returns the agent.type label, if present.
func (c Container) AgentType() string {
	return c.Labels[LabelAgentType]
}

// Runtime is the boundary the reconciler observes the outside world through.
type Runtime interface {
	// ListContainers enumerates all containers, including stopped ones.
	ListContainers(ctx context.Context) ([]Container, error)
	// Exec runs a command inside a running container and returns its
	// combined output.
	Exec(ctx context.Context, containerID string, cmd ...string) ([]byte, error)
}

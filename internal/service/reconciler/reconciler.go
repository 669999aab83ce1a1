// Package reconciler merges externally observed container state into the
// agent registry. It is the only place the backend performs unreliable,
// best-effort introspection; everything downstream sees already-clean state.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agenthall/agenthall/backend/internal/model/agent"
	"github.com/agenthall/agenthall/backend/internal/runtime"
	"github.com/agenthall/agenthall/backend/internal/service/registry"
)

// DefaultInterval is how often a reconciliation pass runs.
const DefaultInterval = 5 * time.Second

// metadataPath is the sidecar file the agent wrapper writes inside its
// container. Two key:value lines; absence simply means "name unknown".
const metadataPath = "/tmp/ht-sessions/metadata.txt"

// Reconciler periodically polls the container runtime and folds what it sees
// into the registry.
type Reconciler struct {
	registry *registry.Registry
	runtime  runtime.Runtime
	interval time.Duration
	inFlight atomic.Bool
}

// New returns a reconciler polling at the given interval (DefaultInterval
// when zero).
func New(reg *registry.Registry, rt runtime.Runtime, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{registry: reg, runtime: rt, interval: interval}
}

// Start runs the polling loop until the context is cancelled. An eager first
// pass fires before the first tick so the dashboard is not empty for a full
// interval after boot.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		r.RunOnce(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single reconciliation pass. Single-flight: if a previous
// pass is still running when the next tick fires, the tick is skipped rather
// than queued, so shell introspection never piles up.
func (r *Reconciler) RunOnce(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		log.Printf("[reconciler] previous pass still running, skipping tick")
		return
	}
	defer r.inFlight.Store(false)

	containers, err := r.runtime.ListContainers(ctx)
	if err != nil {
		log.Printf("[reconciler] list containers: %v", err)
		return
	}

	for _, c := range containers {
		if err := r.reconcileContainer(ctx, c); err != nil {
			// Per-container isolation: one noisy container must not
			// starve the rest of the fleet of updates.
			log.Printf("[reconciler] container %s: %v", c.ID, err)
		}
	}
}

func (r *Reconciler) reconcileContainer(ctx context.Context, c runtime.Container) error {
	name := c.AgentName()
	kind := agent.Kind(c.AgentType())
	if name == "" || !kind.Valid() {
		return nil
	}

	agentID := agent.DeriveID(kind, name)
	r.registry.Register(name, kind, c.ID)

	status := agent.StatusStopped
	if c.Running() {
		status = agent.StatusRunning
	}
	r.registry.SetStatus(agentID, status)

	if !c.Running() {
		return nil
	}
	return r.scanSessions(ctx, agentID, c.ID)
}

// scanSessions enumerates terminal-multiplexer processes inside a running
// container and registers any session not yet tracked for the agent.
func (r *Reconciler) scanSessions(ctx context.Context, agentID, containerID string) error {
	out, err := r.runtime.Exec(ctx, containerID, "ps", "aux")
	if err != nil {
		return fmt.Errorf("enumerate processes: %w", err)
	}

	sessionIDs := sessionIDsFromPS(string(out), containerID)
	if len(sessionIDs) == 0 {
		return nil
	}

	// Metadata is shared per container; read it once per scan, and only
	// when there is something new to name.
	var meta sessionMetadata
	metaLoaded := false

	for _, sessionID := range sessionIDs {
		if r.registry.HasSession(agentID, sessionID) {
			continue
		}
		if !metaLoaded {
			meta = r.readMetadata(ctx, containerID)
			metaLoaded = true
		}
		name := ""
		if meta.AgentName != "" {
			name = meta.AgentName + " session"
		}
		if _, err := r.registry.AddSession(agentID, sessionID, "", name); err != nil {
			if errors.Is(err, registry.ErrSessionExists) {
				continue
			}
			return fmt.Errorf("add session %s: %w", sessionID, err)
		}
		log.Printf("[reconciler] new terminal session %s for agent %s", sessionID, agentID)
	}
	return nil
}

type sessionMetadata struct {
	AgentName string
	StartedAt string
}

// readMetadata fetches the sidecar file. Any failure, including the file not
// existing yet, degrades to empty metadata.
func (r *Reconciler) readMetadata(ctx context.Context, containerID string) sessionMetadata {
	out, err := r.runtime.Exec(ctx, containerID, "cat", metadataPath)
	if err != nil {
		return sessionMetadata{}
	}
	return parseMetadata(string(out))
}

func parseMetadata(raw string) sessionMetadata {
	var meta sessionMetadata
	for _, line := range strings.Split(raw, "\n") {
		if value, ok := strings.CutPrefix(line, "Agent:"); ok {
			meta.AgentName = strings.TrimSpace(value)
		} else if value, ok := strings.CutPrefix(line, "Started:"); ok {
			meta.StartedAt = strings.TrimSpace(value)
		}
	}
	return meta
}

// sessionIDsFromPS derives stable session identifiers from ps output: one per
// ht process, keyed by pid and scoped by the container id so sessions in two
// containers can never collide.
func sessionIDsFromPS(psOutput, containerID string) []string {
	short := containerID
	if len(short) > 12 {
		short = short[:12]
	}

	ids := make([]string, 0, 2)
	for i, line := range strings.Split(psOutput, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 11 {
			continue
		}
		if !isTerminalProcess(fields[10:]) {
			continue
		}
		ids = append(ids, fmt.Sprintf("ht-%s-%s", short, fields[1]))
	}
	return ids
}

// isTerminalProcess matches the ht terminal-multiplexer signature: the
// command itself, or anything anchored in its session directory.
func isTerminalProcess(command []string) bool {
	if len(command) == 0 {
		return false
	}
	base := command[0]
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if base == "ht" {
		return true
	}
	for _, arg := range command {
		if strings.Contains(arg, "/tmp/ht-sessions") {
			return true
		}
	}
	return false
}

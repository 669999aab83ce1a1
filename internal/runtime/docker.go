package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultCallTimeout = 10 * time.Second

// CommandRunner executes a docker CLI invocation. The indirection exists so
// tests can observe the reconciler without a docker daemon.
type CommandRunner interface {
	Run(ctx context.Context, args []string) ([]byte, error)
}

type execRunner struct {
	bin string
}

func (r execRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %s: %w", r.bin, args[0], msg, err)
		}
		return nil, fmt.Errorf("%s %s: %w", r.bin, args[0], err)
	}
	return out.Bytes(), nil
}

// DockerClient implements Runtime by shelling out to the docker CLI.
type DockerClient struct {
	runner  CommandRunner
	timeout time.Duration
}

// NewDockerClient returns a client invoking the given docker binary
// (defaulting to "docker" on PATH).
func NewDockerClient(bin string) *DockerClient {
	if bin == "" {
		bin = "docker"
	}
	return &DockerClient{runner: execRunner{bin: bin}, timeout: defaultCallTimeout}
}

// NewDockerClientWithRunner returns a client using a custom command runner.
func NewDockerClientWithRunner(runner CommandRunner) *DockerClient {
	return &DockerClient{runner: runner, timeout: defaultCallTimeout}
}

// psLine mirrors the fields of `docker ps --format '{{json .}}'` we consume.
type psLine struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	State  string `json:"State"`
	Labels string `json:"Labels"`
}

// ListContainers enumerates every container, stopped ones included.
func (c *DockerClient) ListContainers(ctx context.Context) ([]Container, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.runner.Run(ctx, []string{"ps", "-a", "--no-trunc", "--format", "{{json .}}"})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	containers := make([]Container, 0)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry psLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("parse container listing %q: %w", line, err)
		}
		containers = append(containers, Container{
			ID:     entry.ID,
			Name:   entry.Names,
			State:  entry.State,
			Labels: parseLabels(entry.Labels),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read container listing: %w", err)
	}
	return containers, nil
}

// Exec runs a command inside a container via `docker exec`.
func (c *DockerClient) Exec(ctx context.Context, containerID string, cmd ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append([]string{"exec", containerID}, cmd...)
	out, err := c.runner.Run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("exec in %s: %w", shortID(containerID), err)
	}
	return out, nil
}

// parseLabels splits docker's "k=v,k2=v2" label encoding.
func parseLabels(raw string) map[string]string {
	labels := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		labels[key] = value
	}
	return labels
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

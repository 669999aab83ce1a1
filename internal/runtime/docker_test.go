package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRunner struct {
	output []byte
	err    error
	args   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	f.args = append(f.args, args)
	return f.output, f.err
}

func TestListContainersParsesJSONLines(t *testing.T) {
	runner := &fakeRunner{output: []byte(
		`{"ID":"aaaabbbbccccddddeeee","Names":"agent-worker1","State":"running","Labels":"agent.name=worker1,agent.type=claude"}` + "\n" +
			`{"ID":"ffffgggghhhhiiiijjjj","Names":"agent-worker2","State":"exited","Labels":"agent.name=worker2,agent.type=codex,com.docker.compose.project=hall"}` + "\n" +
			`{"ID":"kkkkllllmmmmnnnnoooo","Names":"postgres","State":"running","Labels":""}` + "\n",
	)}
	client := NewDockerClientWithRunner(runner)

	containers, err := client.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers err: %v", err)
	}
	if len(containers) != 3 {
		t.Fatalf("expected 3 containers, got %d", len(containers))
	}

	first := containers[0]
	if !first.Running() {
		t.Fatalf("expected running state, got %q", first.State)
	}
	if first.AgentName() != "worker1" || first.AgentType() != "claude" {
		t.Fatalf("labels not extracted: %+v", first.Labels)
	}

	second := containers[1]
	if second.Running() {
		t.Fatal("exited container reported running")
	}
	if second.AgentType() != "codex" {
		t.Fatalf("labels not extracted among extras: %+v", second.Labels)
	}

	third := containers[2]
	if third.AgentName() != "" {
		t.Fatalf("unlabeled container produced an agent name: %q", third.AgentName())
	}

	if len(runner.args) != 1 || runner.args[0][0] != "ps" {
		t.Fatalf("unexpected docker invocation: %v", runner.args)
	}
}

func TestListContainersEmptyOutput(t *testing.T) {
	client := NewDockerClientWithRunner(&fakeRunner{output: []byte("\n")})

	containers, err := client.ListContainers(context.Background())
	if err != nil {
		t.Fatalf("ListContainers err: %v", err)
	}
	if len(containers) != 0 {
		t.Fatalf("expected no containers, got %d", len(containers))
	}
}

func TestListContainersMalformedLine(t *testing.T) {
	client := NewDockerClientWithRunner(&fakeRunner{output: []byte("not json\n")})

	if _, err := client.ListContainers(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestExecBuildsArgs(t *testing.T) {
	runner := &fakeRunner{output: []byte("USER PID\n")}
	client := NewDockerClientWithRunner(runner)

	out, err := client.Exec(context.Background(), "aaaabbbbccccdddd", "ps", "aux")
	if err != nil {
		t.Fatalf("Exec err: %v", err)
	}
	if string(out) != "USER PID\n" {
		t.Fatalf("unexpected output: %q", out)
	}

	want := []string{"exec", "aaaabbbbccccdddd", "ps", "aux"}
	got := runner.args[0]
	if len(got) != len(want) {
		t.Fatalf("unexpected args: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestExecWrapsErrors(t *testing.T) {
	base := errors.New("container not running")
	client := NewDockerClientWithRunner(&fakeRunner{err: base})

	_, err := client.Exec(context.Background(), "aaaabbbbccccddddeeee", "ps", "aux")
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if !strings.Contains(err.Error(), "aaaabbbbcccc") {
		t.Fatalf("error should carry the short container id: %v", err)
	}
}

func TestParseLabels(t *testing.T) {
	labels := parseLabels("agent.name=worker1,agent.type=claude,empty,k=v=extra")
	if labels["agent.name"] != "worker1" || labels["agent.type"] != "claude" {
		t.Fatalf("unexpected labels: %+v", labels)
	}
	if labels["k"] != "v=extra" {
		t.Fatalf("value containing '=' mishandled: %q", labels["k"])
	}
	if _, ok := labels["empty"]; ok {
		t.Fatal("bare token without '=' must be ignored")
	}
}

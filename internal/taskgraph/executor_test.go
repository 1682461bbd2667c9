package taskgraph

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"forgeline/internal/blueprint"
	"forgeline/internal/llm"
)

var reTarget = regexp.MustCompile(`Generate the file (\S+)\.`)

// pathClient answers every request with a file for the requested path.
// Paths listed in failPaths always error; emptyPaths return no content.
type pathClient struct {
	mu        sync.Mutex
	calls     int
	failPaths map[string]bool
	emptyPath string
}

func (c *pathClient) Name() string { return "path-fake" }
func (c *pathClient) Close() error { return nil }

func (c *pathClient) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	m := reTarget.FindStringSubmatch(req.Instruction)
	if m == nil {
		return nil, errors.New("no target in instruction")
	}
	path := m[1]
	if c.failPaths[path] {
		return nil, errors.New("provider transport failure")
	}
	if path == c.emptyPath {
		return llm.FilesResponse{Files: []llm.File{{Path: path, Content: ""}}}, nil
	}
	return llm.FilesResponse{Files: []llm.File{{Path: path, Content: "// " + path}}}, nil
}

func (c *pathClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func diamond() *blueprint.Blueprint {
	return &blueprint.Blueprint{
		Name: "demo",
		Components: []blueprint.Component{
			{Path: "a.tsx", Purpose: "a"},
			{Path: "b.tsx", Purpose: "b"},
			{Path: "c.tsx", Purpose: "c", DependsOn: []string{"a.tsx", "b.tsx"}},
		},
	}
}

func TestRunCompletesInDependencyOrder(t *testing.T) {
	client := &pathClient{}
	e := &Executor{Client: client, Workers: 2}
	files, report, err := e.Run(context.Background(), diamond())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v", report.Outcome)
	}
	if files.Len() != 3 {
		t.Fatalf("staged files = %d, want 3", files.Len())
	}
	// Every dependency must be Done (DoneTick set) before the dependent starts.
	c := report.Tasks["c.tsx"]
	for _, dep := range []string{"a.tsx", "b.tsx"} {
		d := report.Tasks[dep]
		if d.DoneTick == 0 || d.DoneTick >= c.StartTick {
			t.Fatalf("dep %s done tick %d not before c start tick %d", dep, d.DoneTick, c.StartTick)
		}
	}
}

func TestRunDeliversDependencyOutputsAsContext(t *testing.T) {
	fake := llm.NewFakeClient().RespondWith(llm.FilesResponse{Files: []llm.File{{Path: "x", Content: "y"}}})
	e := &Executor{Client: fake, Workers: 1, System: "sys"}
	bp := &blueprint.Blueprint{
		Name: "ctx",
		Components: []blueprint.Component{
			{Path: "lib.tsx", Purpose: "lib"},
			{Path: "app.tsx", Purpose: "app", DependsOn: []string{"lib.tsx"}},
		},
	}
	if _, _, err := e.Run(context.Background(), bp); err != nil {
		t.Fatalf("Run: %v", err)
	}
	reqs := fake.Requests()
	if len(reqs) != 2 {
		t.Fatalf("calls = %d, want 2", len(reqs))
	}
	last := reqs[1]
	if len(last.ContextFiles) != 1 || last.ContextFiles[0].Path != "lib.tsx" {
		t.Fatalf("dependent request context = %+v, want lib.tsx content", last.ContextFiles)
	}
}

func TestRunRejectsCycleBeforeAnyGeneration(t *testing.T) {
	client := &pathClient{}
	e := &Executor{Client: client}
	bp := &blueprint.Blueprint{
		Name: "loop",
		Components: []blueprint.Component{
			{Path: "a.tsx", Purpose: "a", DependsOn: []string{"b.tsx"}},
			{Path: "b.tsx", Purpose: "b", DependsOn: []string{"a.tsx"}},
		},
	}
	_, _, err := e.Run(context.Background(), bp)
	var cyc *blueprint.CyclicDependencyError
	if !errors.As(err, &cyc) {
		t.Fatalf("err = %v, want CyclicDependencyError", err)
	}
	if client.Calls() != 0 {
		t.Fatalf("generation calls = %d, want 0", client.Calls())
	}
}

func TestRunFailForwardSkipsDependents(t *testing.T) {
	client := &pathClient{failPaths: map[string]bool{"b.tsx": true}}
	e := &Executor{Client: client, Workers: 2, TaskRetries: 1}
	bp := &blueprint.Blueprint{
		Name: "partial",
		Components: []blueprint.Component{
			{Path: "a.tsx", Purpose: "a"},
			{Path: "b.tsx", Purpose: "b"},
			{Path: "uses-b.tsx", Purpose: "child of b", DependsOn: []string{"b.tsx"}},
			{Path: "uses-a.tsx", Purpose: "child of a", DependsOn: []string{"a.tsx"}},
		},
	}
	files, report, err := e.Run(context.Background(), bp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomePartial {
		t.Fatalf("outcome = %v, want partial", report.Outcome)
	}
	if _, ok := report.Failed["b.tsx"]; !ok {
		t.Fatalf("failed = %v, want b.tsx", report.Failed)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "uses-b.tsx" {
		t.Fatalf("skipped = %v, want [uses-b.tsx]", report.Skipped)
	}
	for _, p := range []string{"a.tsx", "uses-a.tsx"} {
		if _, ok := files.Get(p); !ok {
			t.Fatalf("independent branch %s missing from staged set", p)
		}
	}
	if _, ok := files.Get("uses-b.tsx"); ok {
		t.Fatal("skipped task must not produce staged content")
	}
}

func TestRunRetriesBeforeFailing(t *testing.T) {
	client := &pathClient{failPaths: map[string]bool{"a.tsx": true}}
	e := &Executor{Client: client, Workers: 1, TaskRetries: 2}
	bp := &blueprint.Blueprint{
		Name:       "retry",
		Components: []blueprint.Component{{Path: "a.tsx", Purpose: "a"}},
	}
	_, report, err := e.Run(context.Background(), bp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", report.Outcome)
	}
	if client.Calls() != 3 {
		t.Fatalf("calls = %d, want 3 (initial + 2 retries)", client.Calls())
	}
}

func TestRunTreatsEmptyOutputAsFailure(t *testing.T) {
	client := &pathClient{emptyPath: "a.tsx"}
	e := &Executor{Client: client, Workers: 1}
	bp := &blueprint.Blueprint{
		Name:       "empty",
		Components: []blueprint.Component{{Path: "a.tsx", Purpose: "a"}},
	}
	_, report, err := e.Run(context.Background(), bp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := report.Failed["a.tsx"]; !ok {
		t.Fatalf("failed = %v, want a.tsx", report.Failed)
	}
}

func TestRunCancelledStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocker := make(chan struct{})
	client := &blockingClient{release: blocker, started: make(chan struct{}, 1)}
	e := &Executor{Client: client, Workers: 1}
	bp := &blueprint.Blueprint{
		Name: "cancel",
		Components: []blueprint.Component{
			{Path: "a.tsx", Purpose: "a"},
			{Path: "behind.tsx", Purpose: "b", DependsOn: []string{"a.tsx"}},
		},
	}
	done := make(chan struct{})
	var report *RunReport
	var runErr error
	go func() {
		_, report, runErr = e.Run(ctx, bp)
		close(done)
	}()
	<-client.started
	cancel()
	close(blocker) // let the in-flight call finish
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !errors.Is(runErr, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", runErr)
	}
	// The in-flight task completed; the dependent was never dispatched.
	if got := client.Calls(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != "behind.tsx" {
		t.Fatalf("skipped = %v, want [behind.tsx]", report.Skipped)
	}
}

type blockingClient struct {
	release <-chan struct{}
	started chan struct{}
	mu      sync.Mutex
	calls   int
}

func (c *blockingClient) Name() string { return "blocking-fake" }
func (c *blockingClient) Close() error { return nil }

func (c *blockingClient) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.started != nil {
		c.started <- struct{}{}
	}
	<-c.release
	m := reTarget.FindStringSubmatch(req.Instruction)
	return llm.FilesResponse{Files: []llm.File{{Path: m[1], Content: "done"}}}, nil
}

func (c *blockingClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Package gatewayapi is the HTTP surface of the orchestrator: start a
// generation run, watch its progress over a websocket, drive incremental
// edits through the conversation endpoint.
package gatewayapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"forgeline/internal/artifact"
	"forgeline/internal/blueprint"
	"forgeline/internal/buildgate"
	"forgeline/internal/contextindex"
	"forgeline/internal/convo"
	"forgeline/internal/llm"
	"forgeline/internal/repair"
	"forgeline/internal/sandbox"
	"forgeline/internal/staged"
	"forgeline/internal/store"
	"forgeline/internal/taskgraph"
)

const defaultRunTimeout = 15 * time.Minute

// Service wires the pipeline: task graph generation, compile repair,
// build gate, context index. One instance serves all projects; runs on
// the same project serialize at promotion.
type Service struct {
	Client    llm.Client
	Store     *store.Store
	Index     *contextindex.Index
	Artifacts artifact.Store
	Hub       *Hub
	// NewSandbox builds a fresh sandbox for one run so concurrent runs
	// never share a workspace.
	NewSandbox func() (sandbox.Sandbox, error)

	Workers     int
	TaskRetries int
	TaskTimeout time.Duration
	RunTimeout  time.Duration
	CompileCmd  string
	BuildCmd    string
	System      string

	projMu sync.Mutex
	projs  map[string]*sync.Mutex
	// convoStates holds the running conversation per project. chats
	// serializes Step calls so concurrent requests never append to the
	// same conversation at once.
	convoMu sync.Mutex
	states  map[string]*convo.State
	chats   map[string]*sync.Mutex
}

// projectLock serializes promotion and reindex per project.
func (s *Service) projectLock(projectID string) *sync.Mutex {
	s.projMu.Lock()
	defer s.projMu.Unlock()
	if s.projs == nil {
		s.projs = make(map[string]*sync.Mutex)
	}
	mu, ok := s.projs[projectID]
	if !ok {
		mu = &sync.Mutex{}
		s.projs[projectID] = mu
	}
	return mu
}

func (s *Service) convoState(projectID string) *convo.State {
	s.convoMu.Lock()
	defer s.convoMu.Unlock()
	if s.states == nil {
		s.states = make(map[string]*convo.State)
	}
	st, ok := s.states[projectID]
	if !ok {
		st = &convo.State{}
		s.states[projectID] = st
	}
	return st
}

// chatLock serializes conversational steps per project; it is always
// taken before projectLock, never after.
func (s *Service) chatLock(projectID string) *sync.Mutex {
	s.convoMu.Lock()
	defer s.convoMu.Unlock()
	if s.chats == nil {
		s.chats = make(map[string]*sync.Mutex)
	}
	mu, ok := s.chats[projectID]
	if !ok {
		mu = &sync.Mutex{}
		s.chats[projectID] = mu
	}
	return mu
}

func newRunID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(b[:])
}

// StartRun kicks off a full generation run and returns immediately with
// the run id; progress flows through the Hub. A nil or invalid blueprint
// falls back to the trivial single-page plan.
func (s *Service) StartRun(ctx context.Context, projectID string, bp *blueprint.Blueprint) (string, error) {
	if projectID == "" {
		return "", errors.New("gatewayapi: projectID is required")
	}
	if bp == nil {
		// The fallback covers only the planner-produced-nothing case; a
		// supplied plan that fails validation is a caller error.
		bp = blueprint.Fallback(projectID)
	} else if err := bp.Validate(); err != nil {
		return "", err
	}

	runID := newRunID()
	s.Hub.Allocate(runID, 64)

	timeout := s.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	// The run outlives the HTTP request that started it.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	go func() {
		defer cancel()
		defer s.Hub.ScheduleCleanup(runID)
		s.run(runCtx, runID, projectID, bp)
	}()
	return runID, nil
}

func (s *Service) run(ctx context.Context, runID, projectID string, bp *blueprint.Blueprint) {
	fail := func(stage string, err error) {
		log.Printf("[gatewayapi] run=%s project=%s %s failed: %v", runID, projectID, stage, err)
		s.Hub.Publish(runID, Event{Type: "failed", RunID: runID, Phase: stage, Message: err.Error()})
	}

	s.Hub.Publish(runID, Event{Type: "phase", RunID: runID, Phase: "generating"})
	exec := &taskgraph.Executor{
		Client:      s.Client,
		Workers:     s.Workers,
		TaskRetries: s.TaskRetries,
		TaskTimeout: s.TaskTimeout,
		System:      s.System,
		Progress: func(taskID string, status taskgraph.Status) {
			s.Hub.Publish(runID, Event{Type: "task", RunID: runID, TaskID: taskID, TaskStatus: status.String()})
		},
	}
	files, report, err := exec.Run(ctx, bp)
	if err != nil {
		fail("generating", err)
		return
	}
	if report.Outcome == taskgraph.OutcomeFailed {
		fail("generating", fmt.Errorf("no task completed (%d failed)", len(report.Failed)))
		return
	}
	if report.Outcome == taskgraph.OutcomePartial {
		s.Hub.Publish(runID, Event{
			Type: "phase", RunID: runID, Phase: "generating",
			Message: fmt.Sprintf("continuing with %d skipped task(s)", len(report.Skipped)),
		})
	}

	prom, err := s.repairAndPromote(ctx, runID, projectID, files)
	if err != nil {
		return // repairAndPromote already published the failure
	}
	s.Hub.Publish(runID, Event{
		Type: "completed", RunID: runID,
		BuildID: prom.Build.ID, PreviewURL: prom.PreviewURL,
	})
}

// repairAndPromote runs the compile/repair loop and, when clean, the
// build gate. Failures are published to the run's event stream.
func (s *Service) repairAndPromote(ctx context.Context, runID, projectID string, files *staged.FileSet) (*buildgate.Promotion, error) {
	fail := func(stage string, err error) error {
		log.Printf("[gatewayapi] run=%s project=%s %s failed: %v", runID, projectID, stage, err)
		s.Hub.Publish(runID, Event{Type: "failed", RunID: runID, Phase: stage, Message: err.Error()})
		return err
	}

	sb, err := s.NewSandbox()
	if err != nil {
		return nil, fail("repairing", fmt.Errorf("sandbox: %w", err))
	}

	s.Hub.Publish(runID, Event{Type: "phase", RunID: runID, Phase: "repairing"})
	runner := &repair.Runner{
		Compiler: sandboxCompiler(sb, s.CompileCmd),
		Client:   s.Client,
		System:   s.System,
	}
	res, err := runner.ValidateAndRepair(ctx, files)
	if err != nil {
		return nil, fail("repairing", err)
	}
	if !res.OK {
		return nil, fail("repairing", fmt.Errorf("%d diagnostic(s) remain after repair budget", len(res.Remaining)))
	}

	s.Hub.Publish(runID, Event{Type: "phase", RunID: runID, Phase: "building"})
	mu := s.projectLock(projectID)
	mu.Lock()
	defer mu.Unlock()
	gate := &buildgate.Gate{
		Store:     s.Store,
		Sandbox:   sb,
		Artifacts: s.Artifacts,
		Reindex:   s.Index,
		BuildCmd:  s.BuildCmd,
	}
	prom, err := gate.PromoteIfGreen(ctx, projectID, files)
	if err != nil {
		return nil, fail("building", err)
	}
	return prom, nil
}

// ChatResult reports one conversational step.
type ChatResult struct {
	RunID      string `json:"runId"`
	Response   string `json:"response"`
	Applied    int    `json:"applied"`
	BuildID    int64  `json:"buildId,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

// Chat applies one conversational amendment to the project's current
// file set. When the step changed files, the result goes through the
// same repair/build gate as a full run before it becomes visible.
func (s *Service) Chat(ctx context.Context, projectID, message string) (*ChatResult, error) {
	if projectID == "" {
		return nil, errors.New("gatewayapi: projectID is required")
	}
	if message == "" {
		return nil, errors.New("gatewayapi: message is required")
	}

	// One conversational step per project at a time: Step appends to the
	// shared conversation state.
	mu := s.chatLock(projectID)
	mu.Lock()
	defer mu.Unlock()

	current, _, err := s.Store.LatestFiles(ctx, projectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("gatewayapi: load project: %w", err)
		}
		current = map[string]string{}
	}
	files := staged.FromMap(current)

	runID := newRunID()
	s.Hub.Allocate(runID, 64)
	defer s.Hub.ScheduleCleanup(runID)
	s.Hub.Publish(runID, Event{Type: "phase", RunID: runID, Phase: "editing"})

	if _, err := s.Store.AppendMessage(ctx, projectID, "user", message); err != nil {
		return nil, fmt.Errorf("gatewayapi: log message: %w", err)
	}

	loop := &convo.Loop{
		Client: s.Client,
		System: s.System,
		Narrow: func(fs *staged.FileSet, request string) []string {
			paths, qerr := s.Index.Query(ctx, projectID, request, 8, 0)
			if qerr != nil || len(paths) == 0 {
				return nil // fall back to the full set
			}
			return paths
		},
	}
	step, err := loop.Step(ctx, s.convoState(projectID), files, message)
	if err != nil {
		return nil, fmt.Errorf("gatewayapi: conversation step: %w", err)
	}
	if _, err := s.Store.AppendMessage(ctx, projectID, "assistant", step.Response); err != nil {
		return nil, fmt.Errorf("gatewayapi: log reply: %w", err)
	}

	out := &ChatResult{RunID: runID, Response: step.Response, Applied: step.Applied}
	if step.Applied == 0 {
		s.Hub.Publish(runID, Event{Type: "completed", RunID: runID, Message: step.Response})
		return out, nil
	}

	prom, err := s.repairAndPromote(ctx, runID, projectID, files)
	if err != nil {
		return nil, fmt.Errorf("gatewayapi: %w", err)
	}
	s.Hub.Publish(runID, Event{
		Type: "completed", RunID: runID,
		BuildID: prom.Build.ID, PreviewURL: prom.PreviewURL,
	})
	out.BuildID = prom.Build.ID
	out.PreviewURL = prom.PreviewURL
	return out, nil
}

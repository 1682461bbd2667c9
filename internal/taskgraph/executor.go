package taskgraph

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"forgeline/internal/blueprint"
	"forgeline/internal/llm"
	"forgeline/internal/retryx"
	"forgeline/internal/staged"
)

/*
Executor turns a validated blueprint into a dependency-ordered task run.

Rules:
- A task is dispatched only after every task it depends on is Done.
- Independent ready tasks run concurrently, bounded by Workers.
- A failing task is retried TaskRetries times with the same inputs, then
  marked Failed; its transitive dependents are Skipped. Independent
  branches keep going.
- Cancellation stops further dispatch; in-flight generation calls finish
  under their own deadline so the sandbox never sees a half-written task.
*/

type Executor struct {
	Client      llm.Client
	Workers     int
	TaskRetries int
	TaskTimeout time.Duration
	System      string // system prompt handed to every generation call
	// Progress, when set, receives every task status transition. It is
	// called from the coordinator goroutine only.
	Progress func(taskID string, status Status)
}

func (e *Executor) notify(taskID string, status Status) {
	if e.Progress != nil {
		e.Progress(taskID, status)
	}
}

type taskResult struct {
	id      string
	content string
	err     error
}

// Run executes the blueprint and returns the staged tree plus a report.
// Planning errors (validation, cycles) fail before any generation call.
func (e *Executor) Run(ctx context.Context, bp *blueprint.Blueprint) (*staged.FileSet, *RunReport, error) {
	if err := bp.Validate(); err != nil {
		return nil, nil, err
	}
	workers := e.Workers
	if workers < 1 {
		workers = 4
	}

	tasks := tasksFrom(bp)
	byID := make(map[string]*Task, len(tasks))
	dependents := make(map[string][]string)
	remaining := make(map[string]int, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		remaining[t.ID] = len(t.DependsOn)
		for _, d := range t.DependsOn {
			dependents[d] = append(dependents[d], t.ID)
		}
	}

	var ready []string
	for _, t := range tasks {
		if remaining[t.ID] == 0 {
			t.Status = StatusReady
			ready = append(ready, t.ID)
		}
	}
	sort.Strings(ready)

	files := staged.NewFileSet()
	report := &RunReport{
		Failed: make(map[string]string),
		Tasks:  byID,
	}

	var clock atomic.Int64
	results := make(chan taskResult)
	inFlight := 0
	finished := 0

	// In-flight calls survive caller cancellation; each carries its own
	// deadline so a stuck provider still unblocks the loop.
	taskCtx := context.WithoutCancel(ctx)

	launch := func(t *Task) {
		t.Status = StatusRunning
		t.StartTick = clock.Add(1)
		e.notify(t.ID, StatusRunning)
		inFlight++
		go func() {
			content, err := e.generate(taskCtx, bp, t, files)
			results <- taskResult{id: t.ID, content: content, err: err}
		}()
	}

	for finished < len(tasks) {
		for ctx.Err() == nil && inFlight < workers && len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			launch(byID[id])
		}
		if inFlight == 0 {
			break
		}
		res := <-results
		inFlight--
		finished++
		t := byID[res.id]
		if res.err != nil {
			t.Status = StatusFailed
			t.DoneTick = clock.Add(1)
			report.Failed[t.ID] = res.err.Error()
			log.Printf("taskgraph: task %s failed: %v", t.ID, res.err)
			e.notify(t.ID, StatusFailed)
			finished += skipDependents(t.ID, byID, dependents, report, e.notify)
			continue
		}
		files.Put(t.TargetFilePath, res.content)
		t.Status = StatusDone
		t.DoneTick = clock.Add(1)
		e.notify(t.ID, StatusDone)
		report.Completed = append(report.Completed, t.ID)
		for _, dep := range dependents[t.ID] {
			d := byID[dep]
			if d.Status != StatusPending {
				continue
			}
			remaining[dep]--
			if remaining[dep] == 0 {
				d.Status = StatusReady
				ready = append(ready, dep)
			}
		}
	}

	// Anything still pending/ready when the loop exits was never run
	// (cancellation or an upstream failure already accounted for).
	for _, t := range tasks {
		if t.Status == StatusPending || t.Status == StatusReady {
			t.Status = StatusSkipped
			e.notify(t.ID, StatusSkipped)
			report.Skipped = append(report.Skipped, t.ID)
		}
	}
	sort.Strings(report.Skipped)

	switch {
	case len(report.Completed) == len(tasks):
		report.Outcome = OutcomeSucceeded
	case len(report.Completed) > 0:
		report.Outcome = OutcomePartial
	default:
		report.Outcome = OutcomeFailed
	}
	if err := ctx.Err(); err != nil {
		return files, report, err
	}
	return files, report, nil
}

// generate runs one task's generation call with bounded retry. Inputs do
// not change between attempts.
func (e *Executor) generate(ctx context.Context, bp *blueprint.Blueprint, t *Task, files *staged.FileSet) (string, error) {
	var contextFiles []llm.File
	for _, dep := range t.DependsOn {
		if c, ok := files.Get(dep); ok {
			contextFiles = append(contextFiles, llm.File{Path: dep, Content: c})
		}
	}
	instruction := fmt.Sprintf("Generate the file %s. Purpose: %s.", t.TargetFilePath, t.Description)
	if bp.Brand != "" {
		instruction += " Style directives: " + bp.Brand
	}
	req := llm.Request{
		System:       e.System,
		Instruction:  instruction,
		ContextFiles: contextFiles,
	}

	var content string
	err := retryx.Do(ctx, retryx.Policy{MaxAttempts: e.TaskRetries + 1, BaseDelay: 500 * time.Millisecond}, func(ctx context.Context) error {
		if e.TaskTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.TaskTimeout)
			defer cancel()
		}
		resp, err := e.Client.Generate(ctx, req)
		if err != nil {
			return err
		}
		fr, ok := resp.(llm.FilesResponse)
		if !ok {
			return fmt.Errorf("task %s: unexpected %T response", t.ID, resp)
		}
		content = pickContent(fr, t.TargetFilePath)
		if content == "" {
			return fmt.Errorf("task %s: empty output", t.ID)
		}
		return nil
	})
	return content, err
}

// pickContent prefers the file matching the task target, falling back to
// the first returned file when the provider renamed it.
func pickContent(fr llm.FilesResponse, target string) string {
	for _, f := range fr.Files {
		if f.Path == target {
			return f.Content
		}
	}
	if len(fr.Files) > 0 {
		return fr.Files[0].Content
	}
	return ""
}

// skipDependents marks every transitive dependent of id as Skipped and
// returns how many tasks it retired.
func skipDependents(id string, byID map[string]*Task, dependents map[string][]string, report *RunReport, notify func(string, Status)) int {
	skipped := 0
	queue := append([]string{}, dependents[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		t := byID[next]
		if t.Status == StatusDone || t.Status == StatusFailed || t.Status == StatusSkipped {
			continue
		}
		t.Status = StatusSkipped
		notify(t.ID, StatusSkipped)
		report.Skipped = append(report.Skipped, t.ID)
		skipped++
		queue = append(queue, dependents[next]...)
	}
	return skipped
}

package taskgraph

import (
	"forgeline/internal/blueprint"
)

// Status is the lifecycle of one generation task.
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusRunning
	StatusDone
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Task is one unit of generation work. Tasks exist only for the duration
// of a run; the outcome lives in the staged file set and the RunReport.
type Task struct {
	ID             string
	TargetFilePath string
	Description    string
	DependsOn      []string
	Status         Status

	// Logical-clock ticks recording scheduling order within the run.
	StartTick int64
	DoneTick  int64
}

// tasksFrom builds the task list from a validated blueprint. Task IDs are
// the component paths; the blueprint guarantees they are unique.
func tasksFrom(bp *blueprint.Blueprint) []*Task {
	tasks := make([]*Task, 0, len(bp.Components))
	for _, c := range bp.Components {
		tasks = append(tasks, &Task{
			ID:             c.Path,
			TargetFilePath: c.Path,
			Description:    c.Purpose,
			DependsOn:      append([]string{}, c.DependsOn...),
			Status:         StatusPending,
		})
	}
	return tasks
}

// Outcome classifies a finished run.
type Outcome int

const (
	// OutcomeSucceeded: every task completed.
	OutcomeSucceeded Outcome = iota
	// OutcomePartial: some components failed or were skipped, the rest
	// completed best-effort.
	OutcomePartial
	// OutcomeFailed: nothing usable was produced.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomePartial:
		return "succeeded with skipped components"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RunReport is the caller-visible record of one executor run.
type RunReport struct {
	Outcome Outcome
	// Completed task IDs in completion order.
	Completed []string
	// Failed maps a task ID to its final failure reason.
	Failed map[string]string
	// Skipped lists tasks never attempted because a dependency failed.
	Skipped []string
	// Tasks preserves final per-task state keyed by ID.
	Tasks map[string]*Task
}

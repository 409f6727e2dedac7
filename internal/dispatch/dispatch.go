// Package dispatch turns classified action plans into harness invocations,
// walking the priority-ordered fallback chain when the primary target is
// unavailable.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mvold/hazel/internal/harness"
	"github.com/mvold/hazel/internal/models"
)

// TaskStore records dispatched work.
type TaskStore interface {
	CreateTask(agent, prompt string, args []string) (*models.Task, error)
	UpdateTaskStatus(id string, status models.TaskStatus, output string) error
}

// ModeMachine is the slice of the mode manager the dispatcher drives.
type ModeMachine interface {
	TransitionTo(target models.Mode, reason string, data map[string]string) bool
}

// Notifier relays text back to the operator (clarification questions,
// reminder payloads). The transport behind it is not the core's concern.
type Notifier interface {
	Relay(text string)
}

// LogNotifier is the default notifier: it writes to the process log.
type LogNotifier struct{}

// Relay logs the text.
func (LogNotifier) Relay(text string) { log.Printf("[operator] %s", text) }

// Attempt records one harness considered during resolution.
type Attempt struct {
	HarnessID string `json:"harness_id"`
	Reason    string `json:"reason"`
}

// Result is the outcome of one dispatch. HarnessID names the harness that
// ultimately handled the request; it is empty only when the whole chain
// was unavailable, in which case Attempts carries the diagnostic detail.
type Result struct {
	HarnessID string          `json:"harness_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Status    string          `json:"status"`
	Output    string          `json:"output,omitempty"`
	Question  string          `json:"question,omitempty"`
	Attempts  []Attempt       `json:"attempts,omitempty"`
	Exec      *harness.Result `json:"-"`
}

// StatusUnavailable marks a dispatch whose entire fallback chain was down.
const StatusUnavailable = "unavailable"

// Dispatcher resolves plans against the fallback chain and invokes the
// harness executor. It imposes no timeout of its own; "one task at a
// time" is enforced by the session layer above, not here.
type Dispatcher struct {
	registry  *harness.Registry
	oracle    harness.Oracle
	executor  harness.Executor
	tasks     TaskStore
	modes     ModeMachine
	notifier  Notifier
	workspace string
}

// New creates a dispatcher.
func New(registry *harness.Registry, oracle harness.Oracle, executor harness.Executor, tasks TaskStore, modes ModeMachine, notifier Notifier, workspace string) *Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Dispatcher{
		registry:  registry,
		oracle:    oracle,
		executor:  executor,
		tasks:     tasks,
		modes:     modes,
		notifier:  notifier,
		workspace: workspace,
	}
}

// Dispatch resolves the plan's target, records a task, and awaits the
// harness. This call blocks for the full duration of the harness run.
//
// Fallback is availability-driven only: a harness that runs and reports
// failure produces a FAILED task, never a retry on another harness.
func (d *Dispatcher) Dispatch(ctx context.Context, plan *models.Plan) (*Result, error) {
	instruction := strings.TrimSpace(strings.Join(plan.Args, " "))
	if instruction == "" {
		return nil, fmt.Errorf("plan has no instruction text")
	}

	selected, attempts := d.resolve(plan.TargetHarness)
	if selected == nil {
		// Record the undispatched request; it never leaves pending.
		task, err := d.tasks.CreateTask(harness.NormalizeID(plan.TargetHarness), instruction, plan.Args)
		if err != nil {
			log.Printf("Warning: failed to record undispatched task: %v", err)
		}
		result := &Result{
			Status:   StatusUnavailable,
			Attempts: attempts,
		}
		if task != nil {
			result.TaskID = task.ID
		}
		return result, fmt.Errorf("no harness available: %s", describeAttempts(attempts))
	}

	task, err := d.tasks.CreateTask(selected.ID, instruction, plan.Args)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	d.modes.TransitionTo(models.ModeWorking, fmt.Sprintf("dispatching task %s to %s", task.ID, selected.ID), map[string]string{
		"task_id": task.ID,
		"harness": selected.ID,
	})

	if err := d.tasks.UpdateTaskStatus(task.ID, models.TaskStatusInProgress, ""); err != nil {
		log.Printf("Warning: failed to mark task %s in progress: %v", task.ID, err)
	}

	execResult, err := d.executor.Execute(ctx, *selected, instruction, d.workspace)
	if err != nil {
		// Transport failure after a positive availability probe: the
		// harness never ran, so there is nothing in-band to relay.
		detail := fmt.Sprintf("harness %s unreachable: %v", selected.ID, err)
		if uerr := d.tasks.UpdateTaskStatus(task.ID, models.TaskStatusFailed, detail); uerr != nil {
			log.Printf("Warning: failed to mark task %s failed: %v", task.ID, uerr)
		}
		d.modes.TransitionTo(models.ModeIdle, detail, nil)
		return &Result{
			HarnessID: selected.ID,
			TaskID:    task.ID,
			Status:    string(models.TaskStatusFailed),
			Output:    detail,
			Attempts:  attempts,
		}, nil
	}

	result := &Result{
		HarnessID: selected.ID,
		TaskID:    task.ID,
		Output:    execResult.Output,
		Attempts:  attempts,
		Exec:      execResult,
	}

	switch execResult.Status {
	case harness.StatusNeedsClarification:
		// Halt here; the task stays in progress until the operator answers.
		result.Status = string(harness.StatusNeedsClarification)
		result.Question = execResult.Question
		d.modes.TransitionTo(models.ModeWaiting, fmt.Sprintf("harness %s needs clarification", selected.ID), map[string]string{
			"task_id":  task.ID,
			"harness":  selected.ID,
			"question": execResult.Question,
		})
		d.notifier.Relay(execResult.Question)

	case harness.StatusSuccess:
		result.Status = string(models.TaskStatusCompleted)
		if err := d.tasks.UpdateTaskStatus(task.ID, models.TaskStatusCompleted, execResult.Output); err != nil {
			log.Printf("Warning: failed to mark task %s completed: %v", task.ID, err)
		}
		d.modes.TransitionTo(models.ModeIdle, fmt.Sprintf("task %s completed", task.ID), nil)

	default:
		result.Status = string(models.TaskStatusFailed)
		if err := d.tasks.UpdateTaskStatus(task.ID, models.TaskStatusFailed, execResult.Output); err != nil {
			log.Printf("Warning: failed to mark task %s failed: %v", task.ID, err)
		}
		d.modes.TransitionTo(models.ModeIdle, fmt.Sprintf("task %s failed", task.ID), nil)
	}

	return result, nil
}

// resolve picks the first available harness: the plan target, then the
// remaining descriptors by ascending fallback priority.
func (d *Dispatcher) resolve(target string) (*harness.Descriptor, []Attempt) {
	var attempts []Attempt
	tried := map[string]bool{}

	check := func(desc harness.Descriptor) *harness.Descriptor {
		tried[desc.ID] = true
		avail := d.oracle.Check(desc.ID)
		if avail.Available {
			return &desc
		}
		attempts = append(attempts, Attempt{HarnessID: desc.ID, Reason: avail.Reason})
		return nil
	}

	if desc, ok := d.registry.Get(target); ok {
		if selected := check(desc); selected != nil {
			return selected, attempts
		}
	} else if target != "" {
		attempts = append(attempts, Attempt{HarnessID: harness.NormalizeID(target), Reason: "not configured"})
	}

	for _, desc := range d.registry.FallbackChain() {
		if tried[desc.ID] {
			continue
		}
		if selected := check(desc); selected != nil {
			return selected, attempts
		}
	}
	return nil, attempts
}

func describeAttempts(attempts []Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = fmt.Sprintf("%s (%s)", a.HarnessID, a.Reason)
	}
	return strings.Join(parts, ", ")
}

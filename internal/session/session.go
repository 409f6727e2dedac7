// Package session is the operator-facing layer of the orchestrator: it
// interprets inbound text under the current mode, enforces the
// one-task-at-a-time policy, routes slash commands, and hands real work
// to classify and dispatch.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/mvold/hazel/internal/classify"
	"github.com/mvold/hazel/internal/dispatch"
	"github.com/mvold/hazel/internal/mode"
	"github.com/mvold/hazel/internal/models"
	"github.com/mvold/hazel/internal/scheduler"
)

// DefaultGuardTerms flag requests that need explicit confirmation before
// dispatch.
var DefaultGuardTerms = []string{
	"rm -rf",
	"force push",
	"push --force",
	"drop table",
	"reset --hard",
}

// TaskStore is the slice of the task store the session uses: listing
// for the operator, plus finalizing tasks parked by a clarification.
type TaskStore interface {
	ListRecentTasks(n int) ([]models.Task, error)
	UpdateTaskStatus(id string, status models.TaskStatus, output string) error
}

// Session routes operator input. One instance per process; messages are
// handled one at a time.
type Session struct {
	modes      *mode.Manager
	planner    *classify.Planner
	dispatcher *dispatch.Dispatcher
	sched      *scheduler.Scheduler
	tasks      TaskStore
	guardTerms []string

	mu          sync.Mutex
	dispatching bool
}

// New creates a session. guardTerms may be nil to use the defaults.
func New(modes *mode.Manager, planner *classify.Planner, dispatcher *dispatch.Dispatcher, sched *scheduler.Scheduler, tasks TaskStore, guardTerms []string) *Session {
	if guardTerms == nil {
		guardTerms = DefaultGuardTerms
	}
	return &Session{
		modes:      modes,
		planner:    planner,
		dispatcher: dispatcher,
		sched:      sched,
		tasks:      tasks,
		guardTerms: guardTerms,
	}
}

// Handle processes one inbound message and returns the reply text.
func (s *Session) Handle(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Say something, or try /status.", nil
	}

	state := s.modes.Current()

	// While guarding, input means confirm or deny and nothing else.
	if state.Mode == models.ModeGuarding {
		return s.handleGuard(ctx, text, state)
	}

	if strings.HasPrefix(text, "/") {
		return s.handleCommand(text)
	}

	switch state.Mode {
	case models.ModeWorking:
		return "Busy with the current task; try again when it finishes.", nil
	case models.ModeWaiting:
		// The message answers the pending clarification question.
		return s.answerClarification(ctx, text, state)
	}

	if s.needsGuard(text) {
		s.modes.TransitionTo(models.ModeGuarding, "guarded request", map[string]string{
			"command": text,
		})
		return fmt.Sprintf("That looks destructive: %q. Reply yes to proceed or no to cancel.", text), nil
	}

	return s.runRequest(ctx, text)
}

// Run is the scheduler entry point: scheduled commands go through the
// same path as operator messages, with replies sent to the log.
func (s *Session) Run(ctx context.Context, command string) error {
	reply, err := s.Handle(ctx, command)
	if reply != "" {
		log.Printf("[scheduled] %s", reply)
	}
	return err
}

func (s *Session) runRequest(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return "Busy with the current task; try again when it finishes.", nil
	}
	s.dispatching = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.dispatching = false
		s.mu.Unlock()
	}()

	plan := s.planner.Plan(ctx, text)
	result, err := s.dispatcher.Dispatch(ctx, plan)
	if err != nil {
		if result != nil && result.Status == dispatch.StatusUnavailable {
			return fmt.Sprintf("No harness could take this: %v", err), nil
		}
		return "", err
	}

	switch result.Status {
	case string(models.TaskStatusCompleted):
		return fmt.Sprintf("Done via %s.\n%s", result.HarnessID, result.Output), nil
	case string(models.TaskStatusFailed):
		return fmt.Sprintf("%s ran but failed (task %s). Reissue if you want another try.\n%s", result.HarnessID, result.TaskID, result.Output), nil
	default:
		return fmt.Sprintf("%s needs clarification: %s", result.HarnessID, result.Question), nil
	}
}

func (s *Session) handleGuard(ctx context.Context, text string, state models.ModeState) (string, error) {
	command := state.Data["command"]

	switch strings.ToLower(text) {
	case "yes", "y", "confirm":
		s.modes.TransitionTo(models.ModeIdle, "guard confirmed", nil)
		if command == "" {
			return "Nothing pending to confirm.", nil
		}
		return s.runRequest(ctx, command)
	case "no", "n", "deny", "cancel":
		s.modes.TransitionTo(models.ModeIdle, "guard denied", nil)
		return "Cancelled.", nil
	default:
		return "Waiting on a guarded operation: reply yes or no.", nil
	}
}

func (s *Session) answerClarification(ctx context.Context, answer string, state models.ModeState) (string, error) {
	question := state.Data["question"]
	s.modes.TransitionTo(models.ModeIdle, "clarification answered", nil)

	// The parked task ends here; the answer re-dispatches as a new one.
	if taskID := state.Data["task_id"]; taskID != "" {
		if err := s.tasks.UpdateTaskStatus(taskID, models.TaskStatusCompleted, "needed clarification; reissued with the answer"); err != nil {
			log.Printf("Warning: failed to finalize clarified task %s: %v", taskID, err)
		}
	}

	combined := answer
	if question != "" {
		combined = fmt.Sprintf("%s\nAnswer: %s", question, answer)
	}
	return s.runRequest(ctx, combined)
}

func (s *Session) needsGuard(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range s.guardTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// --- Slash commands ---

func (s *Session) handleCommand(text string) (string, error) {
	fields := strings.Fields(text)

	switch fields[0] {
	case "/status":
		state := s.modes.Current()
		return fmt.Sprintf("Mode: %s (since %s)", state.Mode, state.Since.Format("15:04:05")), nil

	case "/tasks":
		return s.formatTasks()

	case "/remind":
		message, delay, err := scheduler.ParseRemind(text)
		if err != nil {
			return err.Error(), nil
		}
		job, err := s.sched.Remind(message, delay)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Reminder %s set for %s.", shortID(job.ID), job.TriggerAt.Format("Jan 2 15:04:05")), nil

	case "/cron":
		return s.handleCron(fields[1:])

	default:
		return fmt.Sprintf("Unknown command %s. Try /status, /tasks, /remind, /cron.", fields[0]), nil
	}
}

func (s *Session) handleCron(args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: /cron list | /cron remove <job_id>", nil
	}

	switch args[0] {
	case "list":
		jobs := s.sched.List()
		if len(jobs) == 0 {
			return "No jobs scheduled.", nil
		}
		var b strings.Builder
		for _, job := range jobs {
			fmt.Fprintf(&b, "%s  %s  %q", shortID(job.ID), job.Kind, job.Command)
			if job.TriggerAt != nil {
				fmt.Fprintf(&b, "  fires %s", job.TriggerAt.Format("Jan 2 15:04:05"))
			}
			if job.IntervalMs > 0 {
				fmt.Fprintf(&b, "  every %dms", job.IntervalMs)
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case "remove":
		if len(args) < 2 {
			return "Usage: /cron remove <job_id>", nil
		}
		id := s.resolveJobID(args[1])
		if err := s.sched.Remove(id); err != nil {
			if err == scheduler.ErrJobNotFound {
				return fmt.Sprintf("No job with id %s.", args[1]), nil
			}
			return "", err
		}
		return fmt.Sprintf("Removed job %s.", args[1]), nil

	default:
		return "Usage: /cron list | /cron remove <job_id>", nil
	}
}

// resolveJobID expands a short id prefix to a full job id when unambiguous.
func (s *Session) resolveJobID(id string) string {
	match := ""
	for _, job := range s.sched.List() {
		if job.ID == id {
			return id
		}
		if strings.HasPrefix(job.ID, id) {
			if match != "" {
				return id // ambiguous prefix, let Remove report not found
			}
			match = job.ID
		}
	}
	if match != "" {
		return match
	}
	return id
}

func (s *Session) formatTasks() (string, error) {
	tasks, err := s.tasks.ListRecentTasks(10)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No tasks yet.", nil
	}

	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s  %-12s %s  %s\n", shortID(t.ID), t.Status, t.Agent, truncate(t.Prompt, 60))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// truncate shortens by runes so a cut never splits a UTF-8 sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// Package models defines the core domain types for Hazel.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents a unit of work handed to a coding-agent harness.
type Task struct {
	ID        string     `json:"id"`
	Agent     string     `json:"agent"`
	Prompt    string     `json:"prompt"`
	Args      []string   `json:"args,omitempty"`
	Status    TaskStatus `json:"status"`
	Output    string     `json:"output,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Mode is the orchestrator's behavioral state. It governs what operator
// input means and what work is permitted.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeWorking  Mode = "working"
	ModeWaiting  Mode = "waiting"
	ModeGuarding Mode = "guarding"
	ModeResting  Mode = "resting"
)

// AllModes lists every declared mode. The mode manager validates its
// handler table against this set at construction time.
var AllModes = []Mode{ModeIdle, ModeWorking, ModeWaiting, ModeGuarding, ModeResting}

// ModeState is the persisted snapshot of the mode machine. Only the
// current value is durable; transition history is in-memory only.
type ModeState struct {
	Mode         Mode              `json:"mode"`
	Since        time.Time         `json:"since"`
	PreviousMode Mode              `json:"previous_mode,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

// ModeTransition is an in-memory audit record of one transition.
type ModeTransition struct {
	From   Mode      `json:"from"`
	To     Mode      `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Plan is the classifier's verdict for one request. Ephemeral, never persisted.
type Plan struct {
	TargetHarness string   `json:"target_harness"`
	Args          []string `json:"args,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

// JobKind distinguishes periodic jobs from cron-derived one-shot reminders.
type JobKind string

const (
	JobKindInterval JobKind = "interval"
	JobKindCronOnce JobKind = "cron_once"
)

// Job is a unit of scheduled work. Interval jobs reschedule themselves
// after each run completes; cron-once jobs fire once and are consumed.
type Job struct {
	ID         string     `json:"id"`
	Kind       JobKind    `json:"kind"`
	Command    string     `json:"command"`
	IntervalMs int64      `json:"interval_ms,omitempty"`
	TriggerAt  *time.Time `json:"trigger_at,omitempty"`
	CronSpec   string     `json:"cron_spec,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  time.Time  `json:"created_at"`
}

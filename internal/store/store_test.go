package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mvold/hazel/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestTaskCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, err := s.CreateTask("claude", "fix the build", []string{"fix the build"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}

	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Agent != "claude" {
		t.Errorf("Expected agent claude, got %s", got.Agent)
	}
	if got.Prompt != "fix the build" {
		t.Errorf("Expected prompt preserved, got %s", got.Prompt)
	}
	if len(got.Args) != 1 || got.Args[0] != "fix the build" {
		t.Errorf("Expected args preserved, got %v", got.Args)
	}

	missing, err := s.GetTask("does-not-exist")
	if err != nil {
		t.Fatalf("GetTask for missing id failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown task id")
	}
}

func TestTaskStatusProgression(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("claude", "test", nil)

	if err := s.UpdateTaskStatus(task.ID, models.TaskStatusInProgress, ""); err != nil {
		t.Fatalf("pending -> in_progress failed: %v", err)
	}
	if err := s.UpdateTaskStatus(task.ID, models.TaskStatusCompleted, "done"); err != nil {
		t.Fatalf("in_progress -> completed failed: %v", err)
	}

	got, _ := s.GetTask(task.ID)
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.Output != "done" {
		t.Errorf("Expected output recorded, got %q", got.Output)
	}
}

func TestTaskTerminalStatusIsFinal(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("claude", "test", nil)
	if err := s.UpdateTaskStatus(task.ID, models.TaskStatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	cases := []models.TaskStatus{
		models.TaskStatusPending,
		models.TaskStatusInProgress,
		models.TaskStatusCompleted,
	}
	for _, status := range cases {
		if err := s.UpdateTaskStatus(task.ID, status, ""); err == nil {
			t.Errorf("Expected rejection moving failed -> %s", status)
		}
	}

	// Re-submitting the same terminal status is also rejected; it would
	// overwrite the recorded output.
	if err := s.UpdateTaskStatus(task.ID, models.TaskStatusFailed, "rewritten"); err != ErrTaskFinalized {
		t.Errorf("Expected ErrTaskFinalized on repeat terminal write, got %v", err)
	}

	got, _ := s.GetTask(task.ID)
	if got.Status != models.TaskStatusFailed {
		t.Errorf("Terminal status was overwritten: %s", got.Status)
	}
	if got.Output != "boom" {
		t.Errorf("Terminal output was overwritten: %q", got.Output)
	}
}

func TestTaskStatusNoRegression(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("claude", "test", nil)
	if err := s.UpdateTaskStatus(task.ID, models.TaskStatusInProgress, ""); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}

	err := s.UpdateTaskStatus(task.ID, models.TaskStatusPending, "")
	if err != ErrStatusRegression {
		t.Errorf("Expected ErrStatusRegression, got %v", err)
	}
}

func TestUpdateUnknownTask(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.UpdateTaskStatus("nope", models.TaskStatusInProgress, "")
	if err != ErrTaskNotFound {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestListRecentTasks(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	first, _ := s.CreateTask("claude", "first", nil)
	time.Sleep(5 * time.Millisecond)
	second, _ := s.CreateTask("gemini", "second", nil)
	time.Sleep(5 * time.Millisecond)
	third, _ := s.CreateTask("copilot", "third", nil)

	tasks, err := s.ListRecentTasks(2)
	if err != nil {
		t.Fatalf("ListRecentTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != third.ID || tasks[1].ID != second.ID {
		t.Errorf("Expected newest-first ordering, got %s then %s (first was %s)", tasks[0].ID, tasks[1].ID, first.ID)
	}
}

func TestListTasksByStatus(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("claude", "a", nil)
	s.CreateTask("claude", "b", nil)
	s.UpdateTaskStatus(task.ID, models.TaskStatusInProgress, "")

	pending, err := s.ListTasksByStatus(models.TaskStatusPending)
	if err != nil {
		t.Fatalf("ListTasksByStatus failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending task, got %d", len(pending))
	}

	inProgress, _ := s.ListTasksByStatus(models.TaskStatusInProgress)
	if len(inProgress) != 1 {
		t.Errorf("Expected 1 in_progress task, got %d", len(inProgress))
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	value, err := s.GetMeta("missing")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value for missing key, got %q", value)
	}

	if err := s.SetMeta("mode_state", `{"mode":"idle"}`); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := s.SetMeta("mode_state", `{"mode":"resting"}`); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}

	value, _ = s.GetMeta("mode_state")
	if value != `{"mode":"resting"}` {
		t.Errorf("Expected latest value, got %q", value)
	}
}

func TestJobPersistence(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	triggerAt := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	job := &models.Job{
		ID:        "job-1",
		Kind:      models.JobKindCronOnce,
		Command:   "ping",
		TriggerAt: &triggerAt,
		CronSpec:  "30 14 1 6 *",
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.SaveJob(job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(jobs))
	}
	if jobs[0].CronSpec != "30 14 1 6 *" {
		t.Errorf("Expected cron spec preserved, got %q", jobs[0].CronSpec)
	}
	if jobs[0].TriggerAt == nil || !jobs[0].TriggerAt.Equal(triggerAt) {
		t.Errorf("Expected trigger instant preserved, got %v", jobs[0].TriggerAt)
	}

	// Upsert keeps a single row
	job.Command = "pong"
	if err := s.SaveJob(job); err != nil {
		t.Fatalf("SaveJob upsert failed: %v", err)
	}
	jobs, _ = s.ListJobs()
	if len(jobs) != 1 || jobs[0].Command != "pong" {
		t.Errorf("Expected upsert, got %d jobs", len(jobs))
	}

	if err := s.DeleteJob("job-1"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	jobs, _ = s.ListJobs()
	if len(jobs) != 0 {
		t.Errorf("Expected no jobs after delete, got %d", len(jobs))
	}
}

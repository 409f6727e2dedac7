// Package scheduler runs Hazel's proactive jobs: fixed-interval polling
// work and cron-derived one-shot reminders. Both kinds feed their command
// into the same dispatch path as operator requests.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mvold/hazel/internal/models"
	cron "github.com/robfig/cron/v3"
)

// ErrJobNotFound indicates the referenced job is not registered.
var ErrJobNotFound = fmt.Errorf("job not found")

// Runner executes a job's command. Scheduled work enters the orchestrator
// through the same path as operator input.
type Runner func(ctx context.Context, command string) error

// JobStore persists one-shot jobs so reminders survive a restart.
type JobStore interface {
	SaveJob(job *models.Job) error
	DeleteJob(id string) error
	ListJobs() ([]models.Job, error)
}

// Scheduler owns the job table and its timers. Invariant: at most one
// outstanding timer per job id; registering or manually triggering a job
// cancels and replaces any pending timer for that id.
type Scheduler struct {
	store  JobStore
	runner Runner

	mu      sync.Mutex
	jobs    map[string]*models.Job
	timers  map[string]*time.Timer
	entries map[string]cron.EntryID
	stopped bool

	cron *cron.Cron
}

// New creates a scheduler. The cron engine starts immediately.
func New(store JobStore, runner Runner) *Scheduler {
	s := &Scheduler{
		store:   store,
		runner:  runner,
		jobs:    map[string]*models.Job{},
		timers:  map[string]*time.Timer{},
		entries: map[string]cron.EntryID{},
		cron:    cron.New(),
	}
	s.cron.Start()
	return s
}

// RegisterInterval registers (or replaces) a periodic job. Each run
// reschedules itself interval after the run completes, so a slow handler
// elongates the effective period. That is intended behavior.
func (s *Scheduler) RegisterInterval(id, command string, interval time.Duration) (*models.Job, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("scheduler stopped")
	}

	s.cancelLocked(id)

	job := &models.Job{
		ID:         id,
		Kind:       models.JobKindInterval,
		Command:    command,
		IntervalMs: interval.Milliseconds(),
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
	}
	s.jobs[id] = job
	s.timers[id] = time.AfterFunc(interval, func() { s.fireInterval(id) })
	return copyJob(job), nil
}

// Remind registers a one-shot reminder firing once at now+delay. The
// trigger instant becomes a minute/hour/day/month cron expression (no
// year field); the entry is consumed on first firing, so the year-less
// expression never recurs. Triggers inside the current minute bypass
// cron and fire off a plain timer.
func (s *Scheduler) Remind(message string, delay time.Duration) (*models.Job, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("delay must be positive")
	}

	triggerAt := time.Now().Add(delay)
	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      models.JobKindCronOnce,
		Command:   message,
		TriggerAt: &triggerAt,
		CronSpec:  CronSpecFor(triggerAt),
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	// Persist before arming: a near trigger may fire and consume the job
	// before this function returns.
	if s.store != nil {
		if err := s.store.SaveJob(job); err != nil {
			log.Printf("Warning: failed to persist reminder %s: %v", job.ID, err)
		}
	}

	if err := s.registerOnce(job); err != nil {
		if s.store != nil {
			s.store.DeleteJob(job.ID)
		}
		return nil, err
	}
	return copyJob(job), nil
}

func (s *Scheduler) registerOnce(job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}

	s.cancelLocked(job.ID)

	id := job.ID

	// Cron only matches the start of a minute. A trigger inside the
	// current minute would next match a year out, so near triggers get a
	// direct timer.
	if job.TriggerAt != nil && !job.TriggerAt.Truncate(time.Minute).After(time.Now()) {
		s.jobs[id] = job
		s.timers[id] = time.AfterFunc(time.Until(*job.TriggerAt), func() { s.fireOnce(id) })
		return nil
	}

	entryID, err := s.cron.AddFunc(job.CronSpec, func() { s.fireOnce(id) })
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	s.jobs[id] = job
	s.entries[id] = entryID
	return nil
}

// Restore reloads persisted one-shot jobs. Reminders whose instant
// already passed while the process was down fire immediately, late.
func (s *Scheduler) Restore() error {
	if s.store == nil {
		return nil
	}
	jobs, err := s.store.ListJobs()
	if err != nil {
		return fmt.Errorf("restore jobs: %w", err)
	}

	for i := range jobs {
		job := jobs[i]
		if job.Kind != models.JobKindCronOnce || !job.Enabled {
			continue
		}
		if job.TriggerAt != nil && job.TriggerAt.Before(time.Now()) {
			log.Printf("Reminder %s missed while down, firing late", job.ID)
			// Register before spawning: fireOnce drops unknown ids.
			s.mu.Lock()
			s.jobs[job.ID] = &job
			s.mu.Unlock()
			go s.fireOnce(job.ID)
			continue
		}
		if err := s.registerOnce(&job); err != nil {
			log.Printf("Warning: failed to restore reminder %s: %v", job.ID, err)
		}
	}
	return nil
}

// Poll runs a job now, synchronously. The regular timer is rescheduled
// from this run, so a manual trigger never causes a near-immediate second
// automatic firing. One-shot jobs are consumed by a manual run.
func (s *Scheduler) Poll(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	command := job.Command
	kind := job.Kind
	s.cancelLocked(id)
	s.mu.Unlock()

	if kind == models.JobKindCronOnce {
		s.consume(id)
	}

	err := s.runner(ctx, command)
	if err != nil {
		log.Printf("Job %s handler: %v", id, err)
	}

	if kind == models.JobKindInterval {
		s.rescheduleInterval(id)
	}
	return err
}

// Remove deletes a job and cancels its pending timer. Unknown ids get
// ErrJobNotFound and the job table is untouched.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	_, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	s.cancelLocked(id)
	delete(s.jobs, id)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteJob(id); err != nil {
			log.Printf("Warning: failed to delete job %s: %v", id, err)
		}
	}
	return nil
}

// List returns a snapshot of all registered jobs.
func (s *Scheduler) List() []models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *copyJob(job))
	}
	return out
}

// Stop clears every pending timer. Handler invocations already in flight
// finish but are not rescheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id := range s.timers {
		s.timers[id].Stop()
		delete(s.timers, id)
	}
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.cron.Stop()
}

// fireInterval is the automatic firing path of an interval job.
func (s *Scheduler) fireInterval(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	command := job.Command
	delete(s.timers, id)
	s.mu.Unlock()

	// Handler failure never disables an interval job.
	if err := s.runner(context.Background(), command); err != nil {
		log.Printf("Job %s handler: %v", id, err)
	}

	s.rescheduleInterval(id)
}

// rescheduleInterval arms the next firing, measured from the completion
// of the last run.
func (s *Scheduler) rescheduleInterval(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || s.stopped || !job.Enabled {
		return
	}
	now := time.Now().UTC()
	job.LastRun = &now

	if existing, ok := s.timers[id]; ok {
		existing.Stop()
	}
	s.timers[id] = time.AfterFunc(time.Duration(job.IntervalMs)*time.Millisecond, func() { s.fireInterval(id) })
}

// fireOnce fires a one-shot reminder. The entry is consumed first, so the
// job disappears whether the handler succeeds or fails.
func (s *Scheduler) fireOnce(id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	command := job.Command
	s.mu.Unlock()

	s.consume(id)

	if err := s.runner(context.Background(), command); err != nil {
		log.Printf("Reminder %s handler: %v", id, err)
	}
}

// consume removes a one-shot job from the timer map and the store.
func (s *Scheduler) consume(id string) {
	s.mu.Lock()
	s.cancelLocked(id)
	delete(s.jobs, id)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.DeleteJob(id); err != nil {
			log.Printf("Warning: failed to delete reminder %s: %v", id, err)
		}
	}
}

// cancelLocked stops any pending timer or cron entry for id. Caller holds mu.
func (s *Scheduler) cancelLocked(id string) {
	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

func copyJob(job *models.Job) *models.Job {
	out := *job
	if job.TriggerAt != nil {
		t := *job.TriggerAt
		out.TriggerAt = &t
	}
	if job.LastRun != nil {
		t := *job.LastRun
		out.LastRun = &t
	}
	return &out
}

// CronSpecFor renders an instant as a minute/hour/day/month expression.
// Cron has no year field; the entry must be removed after firing or it
// would match again a year later.
func CronSpecFor(t time.Time) string {
	return fmt.Sprintf("%d %d %d %d *", t.Minute(), t.Hour(), t.Day(), int(t.Month()))
}

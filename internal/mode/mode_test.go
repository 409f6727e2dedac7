package mode

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/mvold/hazel/internal/models"
)

// memMeta is an in-memory MetaStore with optional write failure.
type memMeta struct {
	values  map[string]string
	failSet bool
	sets    int
}

func newMemMeta() *memMeta {
	return &memMeta{values: map[string]string{}}
}

func (m *memMeta) GetMeta(key string) (string, error) {
	return m.values[key], nil
}

func (m *memMeta) SetMeta(key, value string) error {
	m.sets++
	if m.failSet {
		return fmt.Errorf("disk full")
	}
	m.values[key] = value
	return nil
}

func noopHandlers() map[models.Mode]Handler {
	handlers := map[models.Mode]Handler{}
	for _, m := range models.AllModes {
		handlers[m] = Handler{}
	}
	return handlers
}

func persistedMode(t *testing.T, meta *memMeta) models.ModeState {
	t.Helper()
	var state models.ModeState
	if err := json.Unmarshal([]byte(meta.values[MetaKey]), &state); err != nil {
		t.Fatalf("Failed to parse persisted state: %v", err)
	}
	return state
}

func TestNewManagerRequiresAllHandlers(t *testing.T) {
	handlers := noopHandlers()
	delete(handlers, models.ModeGuarding)

	_, err := NewManager(newMemMeta(), handlers)
	if err == nil {
		t.Fatal("Expected error for missing guarding handler")
	}
}

func TestNewManagerRejectsUndeclaredMode(t *testing.T) {
	handlers := noopHandlers()
	handlers[models.Mode("turbo")] = Handler{}

	_, err := NewManager(newMemMeta(), handlers)
	if err == nil {
		t.Fatal("Expected error for undeclared mode handler")
	}
}

func TestStartsIdleWithEmptyStore(t *testing.T) {
	mgr, err := NewManager(newMemMeta(), noopHandlers())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if mgr.Mode() != models.ModeIdle {
		t.Errorf("Expected idle, got %s", mgr.Mode())
	}
}

func TestStartupRecovery(t *testing.T) {
	for _, stale := range []models.Mode{models.ModeWorking, models.ModeWaiting, models.ModeGuarding} {
		t.Run(string(stale), func(t *testing.T) {
			meta := newMemMeta()
			old := models.ModeState{Mode: stale, Since: time.Now().UTC().Add(-time.Hour)}
			raw, _ := json.Marshal(old)
			meta.values[MetaKey] = string(raw)

			mgr, err := NewManager(meta, noopHandlers())
			if err != nil {
				t.Fatalf("NewManager failed: %v", err)
			}

			if mgr.Mode() != models.ModeIdle {
				t.Errorf("Expected recovery to idle, got %s", mgr.Mode())
			}
			state := mgr.Current()
			if !state.Since.After(old.Since) {
				t.Error("Expected a fresh Since after recovery")
			}
			// The correction must already be durable.
			if persistedMode(t, meta).Mode != models.ModeIdle {
				t.Error("Expected recovered mode persisted")
			}
		})
	}
}

func TestStartupRestoresRestUnchanged(t *testing.T) {
	for _, trusted := range []models.Mode{models.ModeIdle, models.ModeResting} {
		t.Run(string(trusted), func(t *testing.T) {
			meta := newMemMeta()
			since := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
			raw, _ := json.Marshal(models.ModeState{Mode: trusted, Since: since})
			meta.values[MetaKey] = string(raw)

			mgr, err := NewManager(meta, noopHandlers())
			if err != nil {
				t.Fatalf("NewManager failed: %v", err)
			}
			if mgr.Mode() != trusted {
				t.Errorf("Expected %s restored, got %s", trusted, mgr.Mode())
			}
			if !mgr.Current().Since.Equal(since) {
				t.Error("Expected Since untouched for a trusted mode")
			}
		})
	}
}

func TestTransitionPersistsAndLogs(t *testing.T) {
	meta := newMemMeta()
	mgr, _ := NewManager(meta, noopHandlers())

	ok := mgr.TransitionTo(models.ModeWorking, "dispatch", map[string]string{"task_id": "t1"})
	if !ok {
		t.Fatal("Expected transition to succeed")
	}

	state := mgr.Current()
	if state.Mode != models.ModeWorking || state.PreviousMode != models.ModeIdle {
		t.Errorf("Unexpected state %+v", state)
	}
	if state.Data["task_id"] != "t1" {
		t.Error("Expected data carried on the transition")
	}
	if persistedMode(t, meta).Mode != models.ModeWorking {
		t.Error("Expected new mode persisted")
	}

	transitions := mgr.Transitions()
	if len(transitions) != 1 || transitions[0].From != models.ModeIdle || transitions[0].To != models.ModeWorking {
		t.Errorf("Unexpected transition log %+v", transitions)
	}
}

func TestTransitionNoOpSameMode(t *testing.T) {
	calls := 0
	handlers := noopHandlers()
	handlers[models.ModeIdle] = Handler{
		OnEnter: func(models.Mode, map[string]string) error { calls++; return nil },
		OnExit:  func(models.Mode) error { calls++; return nil },
	}

	mgr, _ := NewManager(newMemMeta(), handlers)
	if !mgr.TransitionTo(models.ModeIdle, "noop", nil) {
		t.Error("Expected no-op transition to report success")
	}
	if calls != 0 {
		t.Errorf("Expected no hook calls on a no-op, got %d", calls)
	}
	if len(mgr.Transitions()) != 0 {
		t.Error("Expected no transition record for a no-op")
	}
}

func TestHookErrorStillCommits(t *testing.T) {
	handlers := noopHandlers()
	handlers[models.ModeIdle] = Handler{
		OnExit: func(models.Mode) error { return fmt.Errorf("exit blew up") },
	}

	meta := newMemMeta()
	mgr, _ := NewManager(meta, handlers)

	ok := mgr.TransitionTo(models.ModeWorking, "dispatch", nil)
	if ok {
		t.Error("Expected failure report when a hook errors")
	}
	// Commit-then-report: the mode changed anyway.
	if mgr.Mode() != models.ModeWorking {
		t.Errorf("Expected committed mode working, got %s", mgr.Mode())
	}
	if persistedMode(t, meta).Mode != models.ModeWorking {
		t.Error("Expected committed mode persisted despite hook error")
	}
}

func TestEnterHookErrorStillCommits(t *testing.T) {
	handlers := noopHandlers()
	handlers[models.ModeWorking] = Handler{
		OnEnter: func(models.Mode, map[string]string) error { return fmt.Errorf("enter blew up") },
	}

	mgr, _ := NewManager(newMemMeta(), handlers)
	if mgr.TransitionTo(models.ModeWorking, "dispatch", nil) {
		t.Error("Expected failure report when enter hook errors")
	}
	if mgr.Mode() != models.ModeWorking {
		t.Errorf("Expected committed mode working, got %s", mgr.Mode())
	}
}

func TestPersistFailureNotFatal(t *testing.T) {
	meta := newMemMeta()
	mgr, _ := NewManager(meta, noopHandlers())
	meta.failSet = true

	ok := mgr.TransitionTo(models.ModeWorking, "dispatch", nil)
	if !ok {
		t.Error("Expected success despite persistence failure")
	}
	if mgr.Mode() != models.ModeWorking {
		t.Errorf("Expected in-memory mode working, got %s", mgr.Mode())
	}
}

func TestPersistedModeTracksLastTransition(t *testing.T) {
	meta := newMemMeta()
	mgr, _ := NewManager(meta, noopHandlers())

	mgr.TransitionTo(models.ModeWorking, "a", nil)
	mgr.TransitionTo(models.ModeWaiting, "b", nil)
	mgr.TransitionTo(models.ModeIdle, "c", nil)

	if persistedMode(t, meta).Mode != models.ModeIdle {
		t.Errorf("Expected persisted mode to match last transition, got %s", persistedMode(t, meta).Mode)
	}
}

func TestCurrentReturnsDefensiveCopy(t *testing.T) {
	mgr, _ := NewManager(newMemMeta(), noopHandlers())
	mgr.TransitionTo(models.ModeGuarding, "guard", map[string]string{"command": "rm -rf build"})

	state := mgr.Current()
	state.Data["command"] = "mutated"

	if mgr.Current().Data["command"] != "rm -rf build" {
		t.Error("Expected internal data unaffected by caller mutation")
	}
}

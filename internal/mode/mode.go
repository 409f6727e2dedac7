// Package mode implements the orchestrator's behavioral state machine.
//
// The current mode is the sole persisted snapshot; transition history is
// kept in memory only. Modes that imply in-flight work (working, waiting,
// guarding) are untrustworthy across an uncontrolled restart and are
// forced back to idle during startup recovery.
package mode

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mvold/hazel/internal/models"
)

// MetaKey is the key under which the mode snapshot is persisted.
const MetaKey = "mode_state"

// MetaStore is the durable key-value store backing mode persistence.
type MetaStore interface {
	GetMeta(key string) (string, error)
	SetMeta(key, value string) error
}

// Handler holds the enter/exit hooks for one mode. Either hook may be nil.
type Handler struct {
	// OnEnter runs after the transition is committed and persisted.
	OnEnter func(from models.Mode, data map[string]string) error
	// OnExit runs before the transition is committed.
	OnExit func(to models.Mode) error
}

// Manager owns the mode state machine. One instance per process.
type Manager struct {
	meta MetaStore

	mu          sync.Mutex
	state       models.ModeState
	handlers    map[models.Mode]Handler
	transitions []models.ModeTransition
}

// NewManager loads the persisted mode and applies startup recovery: a
// persisted working/waiting/guarding mode is forced to idle with a fresh
// Since, and the correction is persisted before any handler can observe it.
// The handler table must contain exactly one entry per declared mode.
func NewManager(meta MetaStore, handlers map[models.Mode]Handler) (*Manager, error) {
	for _, m := range models.AllModes {
		if _, ok := handlers[m]; !ok {
			return nil, fmt.Errorf("mode %s has no registered handler", m)
		}
	}
	for m := range handlers {
		known := false
		for _, declared := range models.AllModes {
			if m == declared {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("handler registered for undeclared mode %s", m)
		}
	}

	mgr := &Manager{meta: meta}

	state, err := loadState(meta)
	if err != nil {
		return nil, err
	}

	switch state.Mode {
	case models.ModeWorking, models.ModeWaiting, models.ModeGuarding:
		recovered := models.ModeState{
			Mode:         models.ModeIdle,
			Since:        time.Now().UTC(),
			PreviousMode: state.Mode,
		}
		log.Printf("Mode %s found at startup, recovering to idle", state.Mode)
		if err := persistState(meta, recovered); err != nil {
			return nil, fmt.Errorf("persist recovered mode: %w", err)
		}
		state = recovered
	}

	mgr.state = state
	mgr.handlers = handlers
	return mgr, nil
}

func loadState(meta MetaStore) (models.ModeState, error) {
	fallback := models.ModeState{Mode: models.ModeIdle, Since: time.Now().UTC()}

	raw, err := meta.GetMeta(MetaKey)
	if err != nil {
		return fallback, fmt.Errorf("load mode state: %w", err)
	}
	if raw == "" {
		return fallback, nil
	}

	var state models.ModeState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// A corrupt snapshot is treated like a missing one.
		log.Printf("Warning: corrupt mode snapshot, starting idle: %v", err)
		return fallback, nil
	}
	if state.Mode == "" {
		return fallback, nil
	}
	return state, nil
}

func persistState(meta MetaStore, state models.ModeState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return meta.SetMeta(MetaKey, string(raw))
}

// Current returns a defensive copy of the mode snapshot.
func (m *Manager) Current() models.ModeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyState(m.state)
}

// Mode returns the current mode.
func (m *Manager) Mode() models.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode
}

// Transitions returns a copy of the in-memory transition log.
func (m *Manager) Transitions() []models.ModeTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ModeTransition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// TransitionTo moves the machine to the target mode.
//
// Already in the target mode: returns true without invoking any hook.
// Otherwise the exit hook of the current mode runs, the new state is
// committed and persisted (a persistence failure is logged and the
// in-memory value stands), then the enter hook of the new mode runs.
//
// A hook error makes the call return false, but the commit has already
// happened: callers must not read a false return as "nothing changed".
// Transitions are serialized; overlapping calls queue on the manager lock.
func (m *Manager) TransitionTo(target models.Mode, reason string, data map[string]string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[target]; !ok {
		log.Printf("Rejected transition to undeclared mode %s", target)
		return false
	}

	if m.state.Mode == target {
		return true
	}

	from := m.state.Mode
	ok := true

	if exit := m.handlers[from].OnExit; exit != nil {
		if err := exit(target); err != nil {
			log.Printf("Mode %s exit hook: %v", from, err)
			ok = false
		}
	}

	now := time.Now().UTC()
	m.state = models.ModeState{
		Mode:         target,
		Since:        now,
		PreviousMode: from,
		Data:         copyData(data),
	}
	m.transitions = append(m.transitions, models.ModeTransition{
		From:   from,
		To:     target,
		Reason: reason,
		At:     now,
	})

	if err := persistState(m.meta, m.state); err != nil {
		// Best-effort durability: keep going with the in-memory value.
		log.Printf("Warning: failed to persist mode state: %v", err)
	}

	if enter := m.handlers[target].OnEnter; enter != nil {
		if err := enter(from, copyData(data)); err != nil {
			log.Printf("Mode %s enter hook: %v", target, err)
			ok = false
		}
	}

	return ok
}

func copyState(s models.ModeState) models.ModeState {
	out := s
	out.Data = copyData(s.Data)
	return out
}

func copyData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

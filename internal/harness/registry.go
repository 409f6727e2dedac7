// Package harness describes the external coding-agent tools Hazel can
// dispatch to and how to invoke them.
package harness

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Descriptor is the static configuration of one harness. Lower
// FallbackPriority means tried earlier when walking the fallback chain.
type Descriptor struct {
	ID               string   `yaml:"id"`
	Command          string   `yaml:"command"`
	Args             []string `yaml:"args"`
	FallbackPriority int      `yaml:"fallback_priority"`
	TriggerTerms     []string `yaml:"trigger_terms"`
	AvoidTerms       []string `yaml:"avoid_terms"`
}

// Registry holds the configured harness descriptors.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Descriptor
}

// NewRegistry builds a registry from descriptors. IDs are normalized to
// lowercase and must be unique.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byID: map[string]Descriptor{}}
	for _, d := range descriptors {
		id := NormalizeID(d.ID)
		if id == "" {
			return nil, fmt.Errorf("harness descriptor without id")
		}
		if d.Command == "" {
			return nil, fmt.Errorf("harness %s has no command", id)
		}
		if _, exists := r.byID[id]; exists {
			return nil, fmt.Errorf("duplicate harness id %s", id)
		}
		d.ID = id
		r.byID[id] = d
	}
	return r, nil
}

// Get returns the descriptor for a harness id.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[NormalizeID(id)]
	return d, ok
}

// FallbackChain returns every descriptor ordered by ascending
// FallbackPriority (ties broken by id for determinism).
func (r *Registry) FallbackChain() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chain := make([]Descriptor, 0, len(r.byID))
	for _, d := range r.byID {
		chain = append(chain, d)
	}
	sort.Slice(chain, func(i, j int) bool {
		if chain[i].FallbackPriority != chain[j].FallbackPriority {
			return chain[i].FallbackPriority < chain[j].FallbackPriority
		}
		return chain[i].ID < chain[j].ID
	})
	return chain
}

// IDs returns all registered harness ids in fallback order.
func (r *Registry) IDs() []string {
	chain := r.FallbackChain()
	ids := make([]string, len(chain))
	for i, d := range chain {
		ids[i] = d.ID
	}
	return ids
}

// NormalizeID canonicalizes a harness id.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

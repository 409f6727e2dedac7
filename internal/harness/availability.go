package harness

import (
	"fmt"
	"os/exec"
)

// Availability reports whether a harness can be dispatched to right now,
// with a human-readable reason when it cannot.
type Availability struct {
	Available bool
	Reason    string
}

// Oracle answers availability questions for harness ids. Consulted before
// each dispatch attempt.
type Oracle interface {
	Check(id string) Availability
}

// PathProber is the default oracle: a harness is available when its CLI
// binary resolves on PATH.
type PathProber struct {
	registry *Registry
	lookPath func(file string) (string, error)
}

// NewPathProber creates a prober over the registry.
func NewPathProber(registry *Registry) *PathProber {
	return &PathProber{registry: registry, lookPath: exec.LookPath}
}

// Check probes the harness binary.
func (p *PathProber) Check(id string) Availability {
	d, ok := p.registry.Get(id)
	if !ok {
		return Availability{Available: false, Reason: fmt.Sprintf("unknown harness %q", id)}
	}
	if _, err := p.lookPath(d.Command); err != nil {
		return Availability{Available: false, Reason: fmt.Sprintf("%s not on PATH", d.Command)}
	}
	return Availability{Available: true}
}

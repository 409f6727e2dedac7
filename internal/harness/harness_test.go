package harness

import (
	"fmt"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(
		Descriptor{ID: "copilot", Command: "copilot", FallbackPriority: 3},
		Descriptor{ID: "gemini", Command: "gemini", FallbackPriority: 2},
		Descriptor{ID: "claude", Command: "claude", FallbackPriority: 1},
	)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return r
}

func TestFallbackChainOrder(t *testing.T) {
	r := testRegistry(t)

	ids := r.IDs()
	want := []string{"claude", "gemini", "copilot"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestRegistryNormalizesIDs(t *testing.T) {
	r, err := NewRegistry(Descriptor{ID: "  Claude ", Command: "claude"})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if _, ok := r.Get("CLAUDE"); !ok {
		t.Error("Expected case-insensitive lookup")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(
		Descriptor{ID: "claude", Command: "claude"},
		Descriptor{ID: "Claude", Command: "claude"},
	)
	if err == nil {
		t.Error("Expected duplicate id rejection")
	}
}

func TestRegistryRejectsMissingCommand(t *testing.T) {
	_, err := NewRegistry(Descriptor{ID: "claude"})
	if err == nil {
		t.Error("Expected rejection of descriptor without command")
	}
}

func TestPathProber(t *testing.T) {
	r := testRegistry(t)
	prober := NewPathProber(r)
	prober.lookPath = func(file string) (string, error) {
		if file == "claude" {
			return "/usr/bin/claude", nil
		}
		return "", fmt.Errorf("not found")
	}

	if avail := prober.Check("claude"); !avail.Available {
		t.Errorf("Expected claude available, got %s", avail.Reason)
	}
	if avail := prober.Check("gemini"); avail.Available {
		t.Error("Expected gemini unavailable")
	} else if avail.Reason == "" {
		t.Error("Expected a reason for unavailability")
	}
	if avail := prober.Check("unknown"); avail.Available {
		t.Error("Expected unknown harness unavailable")
	}
}

func TestParseClarification(t *testing.T) {
	tests := []struct {
		output   string
		question string
		ok       bool
	}{
		{"all done", "", false},
		{"CLARIFY: which branch should I target?", "which branch should I target?", true},
		{"some progress\nCLARIFY: need the repo URL\n", "need the repo URL", true},
		{"  CLARIFY:   spaced out  ", "spaced out", true},
		{"the word clarify mid-sentence", "", false},
	}

	for _, tt := range tests {
		question, ok := parseClarification(tt.output)
		if ok != tt.ok || question != tt.question {
			t.Errorf("parseClarification(%q) = (%q, %v), want (%q, %v)", tt.output, question, ok, tt.question, tt.ok)
		}
	}
}

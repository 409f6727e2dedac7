// Package classify turns free-text operator requests into action plans.
//
// The primary classifier is a hosted language-model call. Its failure
// modes (endpoint down, malformed output) are masked: the planner falls
// back to a local rule-based classifier and always produces a plan.
package classify

import (
	"context"
	"log"
	"strings"

	"github.com/mvold/hazel/internal/harness"
	"github.com/mvold/hazel/internal/models"
)

// Classifier produces an action plan for a free-text request.
type Classifier interface {
	Classify(ctx context.Context, text string) (*models.Plan, error)
}

// Planner wraps a primary classifier with the rule-based fallback.
// Classification never fails from the caller's point of view.
type Planner struct {
	primary  Classifier
	fallback *RuleClassifier
}

// NewPlanner creates a planner. primary may be nil, in which case only
// the rule-based classifier is used.
func NewPlanner(primary Classifier, registry *harness.Registry) *Planner {
	return &Planner{
		primary:  primary,
		fallback: NewRuleClassifier(registry),
	}
}

// Plan classifies the request, masking primary-classifier failures.
func (p *Planner) Plan(ctx context.Context, text string) *models.Plan {
	if p.primary != nil {
		plan, err := p.primary.Classify(ctx, text)
		if err == nil && plan != nil && plan.TargetHarness != "" {
			plan.TargetHarness = harness.NormalizeID(plan.TargetHarness)
			return plan
		}
		if err != nil {
			log.Printf("Classifier unavailable, using rule fallback: %v", err)
		}
	}
	plan, _ := p.fallback.Classify(ctx, text)
	return plan
}

// RuleClassifier scores harness descriptors by their trigger and avoid
// terms. It is the conservative default plan source.
type RuleClassifier struct {
	registry *harness.Registry
}

// NewRuleClassifier creates a rule-based classifier over the registry.
func NewRuleClassifier(registry *harness.Registry) *RuleClassifier {
	return &RuleClassifier{registry: registry}
}

// Classify picks the harness whose trigger terms best match the request.
// An avoid-term hit disqualifies a harness. With no match at all, the
// top-priority harness gets the request verbatim.
func (c *RuleClassifier) Classify(_ context.Context, text string) (*models.Plan, error) {
	lower := strings.ToLower(text)
	chain := c.registry.FallbackChain()

	best := ""
	bestScore := 0
	for _, d := range chain {
		if hitsAny(lower, d.AvoidTerms) {
			continue
		}
		score := 0
		for _, term := range d.TriggerTerms {
			if term != "" && strings.Contains(lower, strings.ToLower(term)) {
				score++
			}
		}
		if score > bestScore {
			best = d.ID
			bestScore = score
		}
	}

	if best == "" {
		if len(chain) == 0 {
			return &models.Plan{Explanation: "no harnesses configured"}, nil
		}
		best = chain[0].ID
	}

	return &models.Plan{
		TargetHarness: best,
		Args:          []string{text},
		Explanation:   "rule-based match",
	}, nil
}

func hitsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

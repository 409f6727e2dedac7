package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mvold/hazel/internal/models"
)

const classifyPrompt = `You route coding requests to one of these tools: %s.
Reply with JSON only: {"target_harness": "...", "args": ["..."], "explanation": "..."}.
Request: %s`

// LLMClassifier calls an OpenAI-compatible chat-completions endpoint and
// parses the plan out of the model's reply.
type LLMClassifier struct {
	endpoint  string
	model     string
	apiKey    string
	harnesses []string
	client    *http.Client
}

// NewLLMClassifier creates a classifier client. harnesses is the list of
// valid routing targets included in the prompt.
func NewLLMClassifier(endpoint, model, apiKey string, harnesses []string) *LLMClassifier {
	return &LLMClassifier{
		endpoint:  strings.TrimRight(endpoint, "/"),
		model:     model,
		apiKey:    apiKey,
		harnesses: harnesses,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify asks the model for a plan. Any transport or parse problem is
// returned as an error; the planner masks it with the rule fallback.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (*models.Plan, error) {
	prompt := fmt.Sprintf(classifyPrompt, strings.Join(c.harnesses, ", "), text)

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse classifier response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	return parsePlan(parsed.Choices[0].Message.Content)
}

// parsePlan extracts the JSON plan from the model reply, tolerating
// surrounding prose or code fences.
func parsePlan(content string) (*models.Plan, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in classifier reply")
	}

	var plan models.Plan
	if err := json.Unmarshal([]byte(content[start:end+1]), &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if plan.TargetHarness == "" {
		return nil, fmt.Errorf("plan missing target harness")
	}
	return &plan, nil
}

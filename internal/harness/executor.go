package harness

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecStatus is the in-band outcome reported by a harness run.
type ExecStatus string

const (
	StatusSuccess            ExecStatus = "success"
	StatusFailed             ExecStatus = "failed"
	StatusNeedsClarification ExecStatus = "needs_clarification"
)

// clarifyPrefix marks a harness output line carrying a question back to
// the operator instead of a result.
const clarifyPrefix = "CLARIFY:"

// Result is the structured outcome of one harness invocation. A Result is
// only produced when the harness actually ran; a transport-level failure
// (binary missing, spawn error) surfaces as an error instead.
type Result struct {
	Status        ExecStatus `json:"status"`
	Output        string     `json:"output"`
	Question      string     `json:"question,omitempty"`
	ExitCode      int        `json:"exit_code"`
	FilesModified []string   `json:"files_modified,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   time.Time  `json:"completed_at"`
}

// Executor invokes a harness with an instruction. The call may block for
// an unbounded duration; callers impose no timeout of their own.
type Executor interface {
	Execute(ctx context.Context, d Descriptor, instruction, workspace string) (*Result, error)
}

// CLIExecutor runs harnesses as subprocesses in the workspace directory.
type CLIExecutor struct{}

// NewCLIExecutor creates a subprocess executor.
func NewCLIExecutor() *CLIExecutor {
	return &CLIExecutor{}
}

// Execute spawns the harness CLI with the instruction appended to its
// configured args and awaits completion.
func (e *CLIExecutor) Execute(ctx context.Context, d Descriptor, instruction, workspace string) (*Result, error) {
	args := append(append([]string{}, d.Args...), instruction)
	cmd := exec.CommandContext(ctx, d.Command, args...)
	if workspace != "" {
		cmd.Dir = workspace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startedAt := time.Now().UTC()
	err := cmd.Run()
	completedAt := time.Now().UTC()

	exitCode := 0
	if err != nil {
		exitError, ok := err.(*exec.ExitError)
		if !ok {
			// Spawn failure, not an in-band result.
			return nil, fmt.Errorf("exec %s: %w", d.Command, err)
		}
		exitCode = exitError.ExitCode()
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	result := &Result{
		Output:        output,
		ExitCode:      exitCode,
		FilesModified: modifiedFiles(ctx, workspace),
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
	}

	if question, ok := parseClarification(output); ok {
		result.Status = StatusNeedsClarification
		result.Question = question
		return result, nil
	}

	if exitCode == 0 {
		result.Status = StatusSuccess
	} else {
		result.Status = StatusFailed
	}
	return result, nil
}

// parseClarification scans for a CLARIFY: line in the harness output.
func parseClarification(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, clarifyPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, clarifyPrefix)), true
		}
	}
	return "", false
}

// modifiedFiles lists workspace files git considers changed. Best-effort:
// a missing git binary or non-repo workspace yields nil.
func modifiedFiles(ctx context.Context, workspace string) []string {
	if workspace == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = workspace
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files
}

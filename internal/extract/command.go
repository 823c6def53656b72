package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rcliao/agent-pulse/internal/model"
)

// CommandExtractor runs an LLM command line with the prompt as its final
// argument and parses standard output.
type CommandExtractor struct {
	argv    []string
	timeout time.Duration
}

// NewCommandExtractor returns an extractor for argv, e.g.
// ["claude", "-p", "--output-format", "text"].
func NewCommandExtractor(argv []string, timeout time.Duration) *CommandExtractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CommandExtractor{argv: argv, timeout: timeout}
}

func (e *CommandExtractor) Extract(ctx context.Context, text string) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append(append([]string{}, e.argv[1:]...), Prompt(text))
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", e.argv[0], err, strings.TrimSpace(stderr.String()))
	}
	return ParseCandidates(stdout.String()), nil
}

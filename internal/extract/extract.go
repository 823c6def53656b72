// Package extract provides pluggable commitment-extraction collaborators.
// Every provider sends the same prompt and feeds the reply through
// ParseCandidates, which never fails: unusable replies yield no candidates.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/agent-pulse/internal/config"
	"github.com/rcliao/agent-pulse/internal/model"
)

// Extractor proposes commitments found in free text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]model.Candidate, error)
}

// Prompt builds the instruction sent to the model.
func Prompt(text string) string {
	return `Extract any commitments, intentions, or tasks from this text. Look for phrases like:
- "I will...", "I'll...", "I need to...", "I should..."
- "remind me to...", "don't let me forget..."
- "today/tomorrow I'll..."

Text:
` + text + `

Return a JSON array of objects with "content" (the task) and "due" (if mentioned, e.g. "today", "tomorrow", a date).
If no commitments are found, return [].
Example: [{"content": "reply to Mark's email", "due": "today"}]

JSON only, no explanation:`
}

var fenced = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

type rawCandidate struct {
	Content string `json:"content"`
	Text    string `json:"text"`
	Task    string `json:"task"`
	Due     any    `json:"due"`
}

// ParseCandidates decodes a model reply. It tolerates markdown fences,
// prose around the JSON, a wrapping object, and either "content", "text"
// or "task" as the commitment key.
func ParseCandidates(reply string) []model.Candidate {
	out := []model.Candidate{}
	reply = strings.TrimSpace(reply)
	if m := fenced.FindStringSubmatch(reply); m != nil {
		reply = m[1]
	}

	raws, ok := decodeList(reply)
	if !ok {
		start, end := strings.Index(reply, "["), strings.LastIndex(reply, "]")
		if start < 0 || end <= start {
			return out
		}
		if raws, ok = decodeList(reply[start : end+1]); !ok {
			return out
		}
	}

	for _, r := range raws {
		text := firstNonEmpty(r.Content, r.Text, r.Task)
		if text == "" {
			continue
		}
		c := model.Candidate{Text: text}
		if due, ok := r.Due.(string); ok {
			c.Due = strings.TrimSpace(due)
		}
		out = append(out, c)
	}
	return out
}

func decodeList(s string) ([]rawCandidate, bool) {
	var list []rawCandidate
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return list, true
	}
	var wrapped map[string][]rawCandidate
	if err := json.Unmarshal([]byte(s), &wrapped); err == nil {
		for _, key := range []string{"commitments", "tasks", "items"} {
			if list, ok := wrapped[key]; ok {
				return list, true
			}
		}
	}
	return nil, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// New builds the extractor selected by cfg. It returns nil when extraction
// is disabled.
func New(cfg config.ExtractConfig) (Extractor, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "command":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("extract: command provider needs a command")
		}
		return NewCommandExtractor(cfg.Command, cfg.Timeout), nil
	case "ollama":
		return NewOllamaExtractor(cfg.URL, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIExtractor(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("extract: unknown provider %q", cfg.Provider)
	}
}

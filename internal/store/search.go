package store

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/rcliao/agent-pulse/internal/model"
)

// Matches reports whether any field value of e contains query under Unicode
// case folding. Non-string values are matched on their JSON rendering.
func Matches(e model.Entry, query string) bool {
	if query == "" {
		return true
	}
	fold := cases.Fold()
	q := fold.String(query)
	for _, v := range e.Fields {
		if strings.Contains(fold.String(model.Stringify(v)), q) {
			return true
		}
	}
	return false
}

func filterEntries(entries []model.Entry, query string) []model.Entry {
	if query == "" {
		return entries
	}
	out := []model.Entry{}
	for _, e := range entries {
		if Matches(e, query) {
			out = append(out, e)
		}
	}
	return out
}

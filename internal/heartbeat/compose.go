package heartbeat

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rcliao/agent-pulse/internal/model"
)

// minFirstLine keeps a truncated first item readable under tiny budgets.
const minFirstLine = 20

// Compose renders items, already in priority order, into one message of
// at most budget characters. Items are packed greedily; once one does not
// fit, it and everything after it are returned as omitted. The first item
// is always included, truncated if necessary. Budgets below
// config.MinMessageBudget cannot hold the header and a readable first
// item; the first line is then kept at minFirstLine and the message runs
// over.
func Compose(items []model.Item, budget int, now time.Time, loc *time.Location) (msg string, included, omitted []model.Item) {
	header := "Heartbeat " + now.In(loc).Format("Mon Jan 2 15:04")
	lines := []string{header}
	used := utf8.RuneCountInString(header)

	for i, it := range items {
		line := "- " + label(it) + it.Text + dueSuffix(it, loc)
		need := 1 + utf8.RuneCountInString(line)
		if used+need <= budget {
			lines = append(lines, line)
			included = append(included, it)
			used += need
			continue
		}
		if len(included) == 0 {
			room := budget - used - 1
			if room < minFirstLine {
				room = minFirstLine
			}
			lines = append(lines, ellipsize(line, room))
			included = append(included, it)
			omitted = items[i+1:]
			break
		}
		omitted = items[i:]
		break
	}
	return strings.Join(lines, "\n"), included, omitted
}

func label(it model.Item) string {
	switch it.Source {
	case model.SourceTask:
		return "Overdue: "
	case model.SourceManual, model.SourceBackground:
		return ""
	default:
		return it.Source + ": "
	}
}

func dueSuffix(it model.Item, loc *time.Location) string {
	if it.Due == nil {
		return ""
	}
	d := it.Due.In(loc)
	if d.Hour() == 0 && d.Minute() == 0 {
		return " (due " + d.Format("Jan 2") + ")"
	}
	return " (due " + d.Format("Jan 2 15:04") + ")"
}

func ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

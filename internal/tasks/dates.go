package tasks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/agent-pulse/internal/store"
)

// dateLayout is how all-day due dates are persisted.
const dateLayout = "2006-01-02"

var relativeDue = regexp.MustCompile(`^in (\d+) (day|days|week|weeks)$`)

// Calendar dates. Layouts without a year roll forward to next year when the
// date has already passed this year.
var (
	datedLayouts    = []string{"2006-01-02", "01/02/2006", "1/2/2006"}
	yearlessLayouts = []string{"01/02", "1/2", "January 2", "Jan 2"}
	timedLayouts    = []string{"2006-01-02 15:04", "2006-01-02T15:04"}
)

// ParseDue interprets a human due expression relative to now in loc. Date
// expressions produce all-day dues at local midnight; expressions with a
// time of day produce timed dues.
func ParseDue(s string, now time.Time, loc *time.Location) (due time.Time, allDay bool, err error) {
	raw := strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}

	s = strings.ToLower(raw)
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch s {
	case "today":
		return today, true, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), true, nil
	case "next week", "nextweek":
		return today.AddDate(0, 0, 7), true, nil
	}
	if m := relativeDue.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return today.AddDate(0, 0, n), true, nil
	}

	for _, layout := range timedLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, false, nil
		}
	}
	for _, layout := range datedLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true, nil
		}
	}
	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		d := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if d.Before(today) {
			d = d.AddDate(1, 0, 0)
		}
		return d, true, nil
	}

	return time.Time{}, false, fmt.Errorf("%w: cannot parse due date %q", store.ErrInvalid, raw)
}

// formatDue renders a due value for storage.
func formatDue(due time.Time, allDay bool) string {
	if allDay {
		return due.Format(dateLayout)
	}
	return due.UTC().Format(time.RFC3339)
}

// readDue is the inverse of formatDue.
func readDue(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}

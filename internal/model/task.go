package model

import "time"

// TaskStatus is the lifecycle state of a commitment. Only pending and done
// are ever stored; overdue is derived at query time.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
	TaskOverdue TaskStatus = "overdue"
)

// ValidTaskFilters are the statuses accepted by list filters.
var ValidTaskFilters = map[TaskStatus]bool{
	TaskPending: true,
	TaskDone:    true,
	TaskOverdue: true,
}

// Task is a tracked commitment.
type Task struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Due         *time.Time `json:"due,omitempty"`
	AllDay      bool       `json:"all_day,omitempty"`
	Status      TaskStatus `json:"status"`
	Source      string     `json:"source,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Overdue is derived when the task is read; it is never stored.
	Overdue bool `json:"overdue,omitempty"`
}

// Candidate is one commitment proposed by an extraction collaborator. Due
// is free text in any form the due-date parser accepts.
type Candidate struct {
	Text string `json:"text"`
	Due  string `json:"due,omitempty"`
}

// OverdueAt reports whether the task is still pending past its due point.
// All-day tasks become overdue once their calendar day has ended in the
// due value's location.
func (t Task) OverdueAt(now time.Time) bool {
	if t.Status != TaskPending || t.Due == nil {
		return false
	}
	if t.AllDay {
		return !now.Before(t.Due.AddDate(0, 0, 1))
	}
	return now.After(*t.Due)
}

// EffectiveStatus is the stored status with overdue layered on top.
func (t Task) EffectiveStatus(now time.Time) TaskStatus {
	if t.OverdueAt(now) {
		return TaskOverdue
	}
	return t.Status
}

package domain

import (
	"errors"
	"strings"
	"time"
)

// Status is the column a task currently belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// ErrInvalidStatus is returned when a status outside the fixed column set is used.
var ErrInvalidStatus = errors.New("invalid status")

// Statuses returns the board columns in display order.
func Statuses() []Status {
	return []Status{StatusTodo, StatusInProgress, StatusDone}
}

// Valid reports whether s is one of the board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// Label is a tag shown on a task card.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Task represents a single board card.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
	Labels      []Label   `json:"labels,omitempty"`
}

// NewTask carries the user supplied fields of a task to be created.
type NewTask struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Labels      []Label `json:"labels,omitempty"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

// Apply returns a copy of t with the patch fields applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	return t
}

// ValidationError describes a field rejected before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// FieldIssue is a field level problem reported by the remote task API.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateTitle rejects titles that are empty once trimmed.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	return nil
}

// CloneTasks returns a deep copy of tasks, labels included.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		if t.Labels != nil {
			t.Labels = append([]Label(nil), t.Labels...)
		}
		out[i] = t
	}
	return out
}

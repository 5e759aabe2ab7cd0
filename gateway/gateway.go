package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskboard/domain"
)

// Gateway is the remote task API the board persists through.
type Gateway interface {
	List(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, task domain.NewTask) (domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
}

// Error is a failure reported by the remote task API. Either Message or
// Issues may be empty.
type Error struct {
	StatusCode int
	Message    string
	Issues     []domain.FieldIssue
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && len(e.Issues) > 0 {
		msg = joinIssues(e.Issues)
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("task api: status %d: %s", e.StatusCode, msg)
	}
	return "task api: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// MessageFrom returns the best user facing message carried by err: the
// API message, then the field issues, then fallback.
func MessageFrom(err error, fallback string) string {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return fallback
	}
	if m := strings.TrimSpace(gwErr.Message); m != "" {
		return m
	}
	if len(gwErr.Issues) > 0 {
		return joinIssues(gwErr.Issues)
	}
	return fallback
}

// IssuesFrom returns the field issues carried by err, if any.
func IssuesFrom(err error) []domain.FieldIssue {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Issues
	}
	return nil
}

func joinIssues(issues []domain.FieldIssue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		switch {
		case is.Field != "" && is.Message != "":
			parts = append(parts, is.Field+": "+is.Message)
		case is.Message != "":
			parts = append(parts, is.Message)
		}
	}
	return strings.Join(parts, "; ")
}

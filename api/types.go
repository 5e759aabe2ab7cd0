package api

import (
	"context"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/events"
)

// BoardReader exposes the current board state.
type BoardReader interface {
	Tasks() []domain.Task
	Columns() board.Columns
	Progress() domain.Progress
}

// Intents is implemented by the board controller.
type Intents interface {
	CreateTask(ctx context.Context, task domain.NewTask) (domain.Task, error)
	EditTask(ctx context.Context, id, title, description string) error
	RequestMove(ctx context.Context, id string, to domain.Status, position *int) (board.MoveOutcome, error)
	PendingMove() (events.ConfirmationRequested, bool)
	ConfirmPendingMove(ctx context.Context) (board.MoveOutcome, error)
	CancelPendingMove() error
	Refresh(ctx context.Context) error
}

// Deduper remembers idempotency keys of create requests.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Complete stores the result of the request made with key.
	Complete(ctx context.Context, scope, key, result string) error
	// Result returns the stored result, empty while the request is running.
	Result(ctx context.Context, scope, key string) (string, error)
	// Remove deletes a key, used when processing fails so the caller may retry.
	Remove(ctx context.Context, scope, key string) error
}

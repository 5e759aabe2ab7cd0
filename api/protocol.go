package api

import (
	"taskboard/board"
	"taskboard/domain"
	"taskboard/events"
)

// MaxRequestSize caps request bodies, after gzip inflation.
const MaxRequestSize = 64 * 1024 // 64 KiB

// GET /api/board response body
type boardResponse struct {
	Columns  board.Columns                 `json:"columns"`
	Progress domain.Progress               `json:"progress"`
	Pending  *events.ConfirmationRequested `json:"pending,omitempty"`
}

// PUT /api/tasks/:id request body
type editRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// POST /api/tasks/:id/move request body
type moveRequest struct {
	Status   domain.Status `json:"status"`
	Position *int          `json:"position,omitempty"`
}

// move and confirm response body
type moveResponse struct {
	Outcome      string                        `json:"outcome"`
	Confirmation *events.ConfirmationRequested `json:"confirmation,omitempty"`
	Progress     *domain.Progress              `json:"progress,omitempty"`
}

type errorResponse struct {
	Error  string              `json:"error"`
	Issues []domain.FieldIssue `json:"issues,omitempty"`
}

package board

import "taskboard/domain"

const (
	msgMoving        = "moving"
	msgMoveCancelled = "move cancelled"
	msgMoveFailed    = "could not move task"
	msgMoveInFlight  = "task is already being moved"
	msgCreated       = "task created"
	msgCreateFailed  = "could not create task"
	msgUpdated       = "task updated"
	msgUpdateFailed  = "could not update task"
	msgLoadFailed    = "could not load tasks"
)

// successMessage is shown after the remote API accepted a move into status.
func successMessage(status domain.Status) string {
	switch status {
	case domain.StatusTodo:
		return "task is pending"
	case domain.StatusInProgress:
		return "task in progress"
	case domain.StatusDone:
		return "task completed"
	}
	return "task moved"
}

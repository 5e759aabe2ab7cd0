package events

import (
	"fmt"

	"github.com/bytedance/sonic"

	"taskboard/domain"
)

// Kind tags an event variant on the wire.
type Kind string

const (
	KindTaskCreated           Kind = "task-created"
	KindTasksChanged          Kind = "tasks-changed"
	KindProgressChanged       Kind = "progress-changed"
	KindConfirmationRequested Kind = "confirmation-requested"
	KindMoveCancelled         Kind = "move-cancelled"
	KindStatus                Kind = "status"
	KindLoadingChanged        Kind = "loading-changed"
	KindBoardCompleted        Kind = "board-completed"
)

// Event is a notification published on the board bus.
type Event interface {
	Kind() Kind
}

// TaskCreated is published after the remote API confirmed a new task.
type TaskCreated struct {
	Task domain.Task `json:"task"`
}

// TasksChanged asks subscribers needing canonical state to refetch.
type TasksChanged struct{}

// ProgressChanged carries recomputed board progress.
type ProgressChanged struct {
	Progress domain.Progress `json:"progress"`
}

// ConfirmationRequested asks the user to approve a staged move.
type ConfirmationRequested struct {
	ID     string        `json:"id"`
	TaskID string        `json:"taskId"`
	From   domain.Status `json:"from"`
	To     domain.Status `json:"to"`
}

// MoveCancelled is published when the user rejects a staged move.
type MoveCancelled struct {
	TaskID string `json:"taskId"`
}

// Severity of a transient status message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// StatusMessage is a transient user facing message.
type StatusMessage struct {
	Severity Severity            `json:"severity"`
	Message  string              `json:"message"`
	Issues   []domain.FieldIssue `json:"issues,omitempty"`
}

// LoadingChanged toggles the loading indicator around a full refetch.
type LoadingChanged struct {
	Loading bool `json:"loading"`
}

// BoardCompleted is published when every task on the board is done.
type BoardCompleted struct {
	Progress domain.Progress `json:"progress"`
}

func (TaskCreated) Kind() Kind           { return KindTaskCreated }
func (TasksChanged) Kind() Kind          { return KindTasksChanged }
func (ProgressChanged) Kind() Kind       { return KindProgressChanged }
func (ConfirmationRequested) Kind() Kind { return KindConfirmationRequested }
func (MoveCancelled) Kind() Kind         { return KindMoveCancelled }
func (StatusMessage) Kind() Kind         { return KindStatus }
func (LoadingChanged) Kind() Kind        { return KindLoadingChanged }
func (BoardCompleted) Kind() Kind        { return KindBoardCompleted }

// Info, Success and Error build status messages.
func Info(msg string) StatusMessage    { return StatusMessage{Severity: SeverityInfo, Message: msg} }
func Success(msg string) StatusMessage { return StatusMessage{Severity: SeveritySuccess, Message: msg} }
func Error(msg string, issues ...domain.FieldIssue) StatusMessage {
	return StatusMessage{Severity: SeverityError, Message: msg, Issues: issues}
}

type envelope struct {
	Type    Kind  `json:"type"`
	Payload Event `json:"payload"`
}

type rawEnvelope struct {
	Type    Kind                   `json:"type"`
	Payload sonic.NoCopyRawMessage `json:"payload"`
}

// Encode serializes an event as {"type": ..., "payload": ...}.
func Encode(ev Event) ([]byte, error) {
	return sonic.Marshal(envelope{Type: ev.Kind(), Payload: ev})
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (Event, error) {
	var raw rawEnvelope
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var ev Event
	switch raw.Type {
	case KindTaskCreated:
		ev = &TaskCreated{}
	case KindTasksChanged:
		return TasksChanged{}, nil
	case KindProgressChanged:
		ev = &ProgressChanged{}
	case KindConfirmationRequested:
		ev = &ConfirmationRequested{}
	case KindMoveCancelled:
		ev = &MoveCancelled{}
	case KindStatus:
		ev = &StatusMessage{}
	case KindLoadingChanged:
		ev = &LoadingChanged{}
	case KindBoardCompleted:
		ev = &BoardCompleted{}
	default:
		return nil, fmt.Errorf("unknown event type %q", raw.Type)
	}
	if len(raw.Payload) > 0 {
		if err := sonic.Unmarshal(raw.Payload, ev); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", raw.Type, err)
		}
	}
	return deref(ev), nil
}

func deref(ev Event) Event {
	switch v := ev.(type) {
	case *TaskCreated:
		return *v
	case *ProgressChanged:
		return *v
	case *ConfirmationRequested:
		return *v
	case *MoveCancelled:
		return *v
	case *StatusMessage:
		return *v
	case *LoadingChanged:
		return *v
	case *BoardCompleted:
		return *v
	}
	return ev
}

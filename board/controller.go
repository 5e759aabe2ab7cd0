package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskboard/domain"
	"taskboard/events"
	"taskboard/gateway"
)

const (
	tracerName    = "taskboard/board"
	moveSpanName  = "board.move"
	defaultMoveTO = 10 * time.Second
)

var (
	// ErrMoveInFlight is returned when a task is moved while a previous move
	// of the same task is still waiting for the remote API.
	ErrMoveInFlight = errors.New("board: move already in progress for task")
	// ErrNoPendingMove is returned when there is no staged move to confirm
	// or cancel.
	ErrNoPendingMove = errors.New("board: no move awaiting confirmation")
	// ErrUnknownTask is returned by intents addressing a task that is not on
	// the board.
	ErrUnknownTask = errors.New("board: unknown task")
)

// MoveOutcome describes what RequestMove did with a move intent.
type MoveOutcome int

const (
	// MoveIgnored means nothing happened: unknown task or no-op move.
	MoveIgnored MoveOutcome = iota
	// MovePending means the move waits for ConfirmPendingMove.
	MovePending
	// MoveApplied means the remote API accepted the move.
	MoveApplied
	// MoveFailed means the move was rejected or rolled back.
	MoveFailed
)

func (o MoveOutcome) String() string {
	switch o {
	case MoveIgnored:
		return "ignored"
	case MovePending:
		return "pending"
	case MoveApplied:
		return "applied"
	case MoveFailed:
		return "failed"
	}
	return "unknown"
}

// ControllerConfig tunes the controller.
type ControllerConfig struct {
	// MoveTimeout bounds every remote call made on behalf of an intent.
	MoveTimeout time.Duration
}

// Controller turns presentation intents into store mutations, remote calls
// and notifications.
type Controller struct {
	store   *Store
	gateway gateway.Gateway
	bus     *events.Bus
	logger  *log.Logger
	timeout time.Duration
	newID   func() string

	mu       sync.Mutex
	pending  *move
	inFlight map[string]struct{}
}

type move struct {
	id       string
	taskID   string
	from     domain.Status
	to       domain.Status
	index    *int
	snapshot []domain.Task
	next     []domain.Task
	version  uint64
}

// NewController wires a controller to its collaborators.
func NewController(store *Store, gw gateway.Gateway, bus *events.Bus, logger *log.Logger, cfg ControllerConfig) *Controller {
	if store == nil || gw == nil || bus == nil || logger == nil {
		panic("board.NewController: nil dependency")
	}
	if cfg.MoveTimeout <= 0 {
		cfg.MoveTimeout = defaultMoveTO
	}
	return &Controller{
		store:    store,
		gateway:  gw,
		bus:      bus,
		logger:   logger,
		timeout:  cfg.MoveTimeout,
		newID:    uuid.NewString,
		inFlight: make(map[string]struct{}),
	}
}

// RequestMove moves a task to target. A nil position appends to the end of
// the destination column, otherwise it is the zero-based index in the
// destination column after the move. Moves that send a task back to Todo
// or mark it Done are staged until ConfirmPendingMove.
func (c *Controller) RequestMove(ctx context.Context, taskID string, target domain.Status, position *int) (MoveOutcome, error) {
	if !target.Valid() {
		return MoveIgnored, domain.ErrInvalidStatus
	}
	tasks, version := c.store.Snapshot()
	task, idx, ok := domain.Locate(tasks, taskID)
	if !ok {
		c.logger.WithField("task", taskID).Debug("move for unknown task ignored")
		return MoveIgnored, nil
	}
	if task.Status == target {
		if position == nil {
			return MoveIgnored, nil
		}
		last := len(domain.Column(tasks, target)) - 1
		if clampIndex(*position, last) == idx {
			return MoveIgnored, nil
		}
	}
	if c.isInFlight(taskID) {
		return c.rejectInFlight(taskID)
	}

	next, _, _ := domain.MoveTask(tasks, taskID, target, position)
	mv := move{
		id:       c.newID(),
		taskID:   taskID,
		from:     task.Status,
		to:       target,
		index:    copyIndex(position),
		snapshot: tasks,
		next:     next,
		version:  version,
	}

	if domain.RequiresConfirmation(task.Status, target) {
		c.mu.Lock()
		c.pending = &mv
		c.mu.Unlock()
		c.logger.WithFields(log.Fields{"task": taskID, "from": task.Status, "to": target}).Debug("move awaiting confirmation")
		c.bus.Publish(events.ConfirmationRequested{ID: mv.id, TaskID: taskID, From: task.Status, To: target})
		return MovePending, nil
	}
	return c.apply(ctx, mv)
}

// PendingMove returns the staged move, if any.
func (c *Controller) PendingMove() (events.ConfirmationRequested, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return events.ConfirmationRequested{}, false
	}
	p := c.pending
	return events.ConfirmationRequested{ID: p.id, TaskID: p.taskID, From: p.from, To: p.to}, true
}

// ConfirmPendingMove applies the staged move.
func (c *Controller) ConfirmPendingMove(ctx context.Context) (MoveOutcome, error) {
	mv, ok := c.takePending()
	if !ok {
		return MoveIgnored, ErrNoPendingMove
	}
	return c.apply(ctx, mv)
}

// CancelPendingMove drops the staged move. The store was never touched.
func (c *Controller) CancelPendingMove() error {
	mv, ok := c.takePending()
	if !ok {
		return ErrNoPendingMove
	}
	c.logger.WithField("task", mv.taskID).Debug("move cancelled")
	c.bus.Publish(events.MoveCancelled{TaskID: mv.taskID})
	c.bus.Publish(events.Info(msgMoveCancelled))
	return nil
}

func (c *Controller) apply(ctx context.Context, mv move) (MoveOutcome, error) {
	if !c.claim(mv.taskID) {
		return c.rejectInFlight(mv.taskID)
	}
	defer c.release(mv.taskID)

	ctx, span := otel.Tracer(tracerName).Start(ctx, moveSpanName, trace.WithAttributes(
		attribute.String("board.task_id", mv.taskID),
		attribute.String("board.move.from", string(mv.from)),
		attribute.String("board.move.to", string(mv.to)),
	))
	defer span.End()

	start := time.Now()
	fields := log.Fields{"task": mv.taskID, "from": mv.from, "to": mv.to}

	var (
		moved   domain.Task
		written uint64
	)
	_, ok := c.store.Update(func(current []domain.Task, version uint64) ([]domain.Task, bool) {
		if version != mv.version {
			next, _, found := domain.MoveTask(current, mv.taskID, mv.to, mv.index)
			if !found {
				return nil, false
			}
			mv.snapshot, mv.next = current, next
		}
		moved, _, _ = domain.Locate(mv.next, mv.taskID)
		written = version + 1
		return mv.next, true
	})
	if !ok {
		span.SetAttributes(attribute.String("board.move.outcome", MoveIgnored.String()))
		c.logger.WithFields(fields).Debug("task vanished before move was applied")
		return MoveIgnored, nil
	}
	c.bus.Publish(events.Info(msgMoving))

	status, position := moved.Status, moved.Position
	callCtx, cancel := c.remoteContext(ctx)
	_, err := c.gateway.Update(callCtx, mv.taskID, domain.TaskPatch{Status: &status, Position: &position})
	cancel()
	fields["gateway_ms"] = durationToMillis(time.Since(start))

	if err != nil {
		c.rollback(mv, written)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("board.move.outcome", MoveFailed.String()))
		c.logger.WithFields(fields).WithError(err).Warn("move rejected; rolled back")
		c.bus.Publish(events.Error(gateway.MessageFrom(err, msgMoveFailed), gateway.IssuesFrom(err)...))
		return MoveFailed, err
	}

	span.SetStatus(codes.Ok, "")
	span.SetAttributes(
		attribute.String("board.move.outcome", MoveApplied.String()),
		attribute.Int("board.move.position", position),
	)
	c.logger.WithFields(fields).Info("task moved")
	c.bus.Publish(events.Success(successMessage(mv.to)))
	c.bus.Publish(events.ProgressChanged{Progress: c.store.Progress()})
	return MoveApplied, nil
}

// rollback restores the pre-move snapshot. When another mutation landed
// after the optimistic write only the moved task is put back, with its
// original position.
func (c *Controller) rollback(mv move, written uint64) {
	orig, origIdx, _ := domain.Locate(mv.snapshot, mv.taskID)
	c.store.Update(func(current []domain.Task, version uint64) ([]domain.Task, bool) {
		if version == written {
			return mv.snapshot, true
		}
		next, _, found := domain.MoveTask(current, mv.taskID, orig.Status, &origIdx)
		if !found {
			return nil, false
		}
		for i := range next {
			if next[i].ID == mv.taskID {
				next[i].Position = orig.Position
			}
		}
		return next, true
	})
}

// remoteContext bounds a write sent to the remote API. A write the API may
// already have committed is not abandoned when the caller goes away, so
// only the timeout ends it.
func (c *Controller) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
}

func (c *Controller) rejectInFlight(taskID string) (MoveOutcome, error) {
	c.logger.WithField("task", taskID).Warn("move rejected; previous move still in flight")
	c.bus.Publish(events.Error(msgMoveInFlight))
	return MoveFailed, ErrMoveInFlight
}

func (c *Controller) takePending() (move, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return move{}, false
	}
	mv := *c.pending
	c.pending = nil
	return mv, true
}

func (c *Controller) isInFlight(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[taskID]
	return ok
}

func (c *Controller) claim(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[taskID]; ok {
		return false
	}
	c.inFlight[taskID] = struct{}{}
	return true
}

func (c *Controller) release(taskID string) {
	c.mu.Lock()
	delete(c.inFlight, taskID)
	c.mu.Unlock()
}

func clampIndex(v, last int) int {
	if v < 0 {
		return 0
	}
	if v > last {
		return last
	}
	return v
}

func copyIndex(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

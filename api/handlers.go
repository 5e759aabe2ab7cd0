package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/board"
	"taskboard/domain"
	"taskboard/events"
	"taskboard/gateway"
)

const (
	idempotencyScope = "board"
	// statusClientClosedRequest is the nginx code for a client that hung up
	// before the response.
	statusClientClosedRequest = 499
)

// Register wires up all API routes on the provided Echo instance. deduper
// may be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, reader BoardReader, intents Intents, bus *events.Bus, deduper Deduper, logger *log.Logger) {
	g := e.Group("/api", RequestMetrics(logger))
	g.GET("/board", getBoard(reader, intents))
	g.GET("/tasks", getTasks(reader))
	g.POST("/tasks", postTask(reader, intents, deduper, logger))
	g.PUT("/tasks/:id", putTask(intents))
	g.POST("/tasks/:id/move", postMove(reader, intents))
	g.POST("/moves/confirm", postConfirm(reader, intents))
	g.POST("/moves/cancel", postCancel(intents))
	g.POST("/refresh", postRefresh(reader, intents))
	// The stream stays open for the client's lifetime so it is not traced
	// as a single request.
	e.GET("/api/stream", streamEvents(reader, bus, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func boardSnapshot(reader BoardReader, intents Intents) boardResponse {
	resp := boardResponse{Columns: reader.Columns(), Progress: reader.Progress()}
	if p, ok := intents.PendingMove(); ok {
		resp.Pending = &p
	}
	return resp
}

func getBoard(reader BoardReader, intents Intents) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := boardSnapshot(reader, intents)
		metricsFrom(c).SetTasksReturned(resp.Progress.Total)
		return c.JSON(http.StatusOK, resp)
	}
}

func getTasks(reader BoardReader) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks := reader.Tasks()
		metricsFrom(c).SetTasksReturned(len(tasks))
		return c.JSON(http.StatusOK, tasks)
	}
}

func postTask(reader BoardReader, intents Intents, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var body domain.NewTask
		if err := decodeBody(c, &body); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}

		key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
		if deduper != nil && key != "" {
			added, err := deduper.Add(ctx, idempotencyScope, key)
			if err != nil {
				// Redis trouble must not block task creation.
				logger.WithError(err).Warn("idempotency check failed; creating without it")
				key = ""
			} else if !added {
				return replayCreate(c, reader, deduper, key)
			}
		} else {
			key = ""
		}

		task, err := intents.CreateTask(ctx, body)
		if err != nil {
			if key != "" {
				if rerr := deduper.Remove(context.WithoutCancel(ctx), idempotencyScope, key); rerr != nil {
					logger.WithError(rerr).Warn("failed to release idempotency key")
				}
			}
			return intentError(c, err)
		}
		if key != "" {
			if err := deduper.Complete(ctx, idempotencyScope, key, task.ID); err != nil {
				logger.WithError(err).Warn("failed to record idempotency result")
			}
		}
		metricsFrom(c).SetOutcome("created")
		return c.JSON(http.StatusCreated, task)
	}
}

func replayCreate(c echo.Context, reader BoardReader, deduper Deduper, key string) error {
	metricsFrom(c).SetOutcome("duplicate")
	id, err := deduper.Result(c.Request().Context(), idempotencyScope, key)
	if err != nil {
		metricsFrom(c).SetErrorStage("idempotency")
		return c.String(http.StatusInternalServerError, "idempotency lookup failed")
	}
	if id == "" {
		return c.JSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key is in progress"})
	}
	for _, t := range reader.Tasks() {
		if t.ID == id {
			return c.JSON(http.StatusOK, t)
		}
	}
	return c.JSON(http.StatusConflict, errorResponse{Error: "request with this idempotency key already completed"})
}

func putTask(intents Intents) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body editRequest
		if err := decodeBody(c, &body); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := intents.EditTask(c.Request().Context(), c.Param("id"), body.Title, body.Description); err != nil {
			return intentError(c, err)
		}
		metricsFrom(c).SetOutcome("updated")
		return c.NoContent(http.StatusNoContent)
	}
}

func postMove(reader BoardReader, intents Intents) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body moveRequest
		if err := decodeBody(c, &body); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		outcome, err := intents.RequestMove(c.Request().Context(), c.Param("id"), body.Status, body.Position)
		return moveResult(c, reader, intents, outcome, err)
	}
}

func postConfirm(reader BoardReader, intents Intents) echo.HandlerFunc {
	return func(c echo.Context) error {
		outcome, err := intents.ConfirmPendingMove(c.Request().Context())
		return moveResult(c, reader, intents, outcome, err)
	}
}

func postCancel(intents Intents) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := intents.CancelPendingMove(); err != nil {
			return intentError(c, err)
		}
		metricsFrom(c).SetOutcome("cancelled")
		return c.NoContent(http.StatusNoContent)
	}
}

func postRefresh(reader BoardReader, intents Intents) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := intents.Refresh(c.Request().Context()); err != nil {
			return intentError(c, err)
		}
		resp := boardSnapshot(reader, intents)
		metricsFrom(c).SetTasksReturned(resp.Progress.Total)
		return c.JSON(http.StatusOK, resp)
	}
}

func moveResult(c echo.Context, reader BoardReader, intents Intents, outcome board.MoveOutcome, err error) error {
	metricsFrom(c).SetOutcome(outcome.String())
	if err != nil {
		return intentError(c, err)
	}
	resp := moveResponse{Outcome: outcome.String()}
	switch outcome {
	case board.MovePending:
		if p, ok := intents.PendingMove(); ok {
			resp.Confirmation = &p
		}
		return c.JSON(http.StatusAccepted, resp)
	case board.MoveApplied:
		p := reader.Progress()
		resp.Progress = &p
	}
	return c.JSON(http.StatusOK, resp)
}

// intentError maps controller errors onto HTTP responses.
func intentError(c echo.Context, err error) error {
	m := metricsFrom(c)
	var vErr *domain.ValidationError
	var gwErr *gateway.Error
	switch {
	case errors.As(err, &vErr):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error:  vErr.Message,
			Issues: []domain.FieldIssue{{Field: vErr.Field, Message: vErr.Message}},
		})
	case errors.Is(err, domain.ErrInvalidStatus):
		m.SetErrorStage("validation")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid status"})
	case errors.Is(err, board.ErrUnknownTask):
		m.SetErrorStage("lookup")
		return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
	case errors.Is(err, board.ErrNoPendingMove):
		m.SetErrorStage("lookup")
		return c.JSON(http.StatusNotFound, errorResponse{Error: "no move awaiting confirmation"})
	case errors.Is(err, board.ErrMoveInFlight):
		m.SetErrorStage("conflict")
		return c.JSON(http.StatusConflict, errorResponse{Error: "task is already being moved"})
	case errors.Is(err, context.Canceled):
		m.SetErrorStage("cancelled")
		return c.JSON(statusClientClosedRequest, errorResponse{Error: "request cancelled"})
	case errors.Is(err, context.DeadlineExceeded):
		m.SetErrorStage("gateway")
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: "task api timed out"})
	case errors.As(err, &gwErr):
		m.SetErrorStage("gateway")
		return c.JSON(http.StatusBadGateway, errorResponse{
			Error:  gateway.MessageFrom(err, "task api request failed"),
			Issues: gwErr.Issues,
		})
	}
	m.SetErrorStage("internal")
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, MaxRequestSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

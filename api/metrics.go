package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "taskboard/api"
	requestSpanName    = "board.request"
	requestEventName   = "board.request.completed"
	requestEventDomain = "taskboard"
	metricsContextKey  = "board.metrics"
)

type requestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	method        string
	route         string
	outcome       string
	tasksReturned int
	errorStage    string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger:        logger,
		span:          span,
		start:         time.Now(),
		method:        method,
		route:         route,
		tasksReturned: -1,
	}, ctx
}

func (m *requestMetrics) SetOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcome = outcome
}

func (m *requestMetrics) SetTasksReturned(count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the request span and emits one observability event carrying the
// same attributes to the log and to the span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64("board.request.total_ms", total),
	}
	if m.outcome != "" {
		attrs = append(attrs, attribute.String("board.request.outcome", m.outcome))
	}
	if m.tasksReturned >= 0 {
		attrs = append(attrs, attribute.Int("board.request.tasks_returned", m.tasksReturned))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.request.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	severity, number := severityForStatus(status, err)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severity),
		attribute.Int("severity_number", number),
	}, attrs...)

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	switch {
	case err != nil:
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	case status >= http.StatusInternalServerError:
		m.span.SetStatus(codes.Error, http.StatusText(status))
	default:
		m.span.SetStatus(codes.Ok, "")
	}

	if m.logger != nil {
		fields := log.Fields{
			"event.name":      requestEventName,
			"event.domain":    requestEventDomain,
			"attributes":      attributesToMap(attrs),
			"severity_text":   severity,
			"severity_number": number,
		}
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
		entry := m.logger.WithFields(fields)
		switch severity {
		case "ERROR":
			entry.Error("observability.event")
		case "WARN":
			entry.Warn("observability.event")
		default:
			entry.Info("observability.event")
		}
	}
	m.span.End()
}

// RequestMetrics traces every request and logs one observability event for
// it. Handlers enrich the event through metricsFrom.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			metrics, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, metrics)

			err := next(c)
			status := c.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			}
			metrics.Log(status, err)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"taskboard/domain"
)

const maxErrorBody = 64 * 1024 // 64 KiB

// HTTPClient talks to a conventional REST task resource:
//
//	GET  /tasks       list
//	POST /tasks       create
//	PUT  /tasks/{id}  partial update
type HTTPClient struct {
	baseURL string
	http    *http.Client
	labels  domain.StatusLabels
	logger  *log.Logger
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithStatusLabels sets the wire labels used for statuses.
func WithStatusLabels(labels domain.StatusLabels) HTTPOption {
	return func(c *HTTPClient) { c.labels = labels }
}

// NewHTTPClient creates a client rooted at baseURL. Requests are traced
// through an otelhttp transport.
func NewHTTPClient(baseURL string, logger *log.Logger, opts ...HTTPOption) *HTTPClient {
	if logger == nil {
		panic("gateway.NewHTTPClient: logger is nil")
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		labels:  domain.DefaultStatusLabels(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireTask struct {
	ID          string         `json:"_id,omitempty"`
	AltID       string         `json:"id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Position    int            `json:"position"`
	CreatedAt   time.Time      `json:"createdAt"`
	Labels      []domain.Label `json:"labels,omitempty"`
}

type wirePatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Position    *int    `json:"position,omitempty"`
}

type wireIssue struct {
	Field   string `json:"field"`
	Path    string `json:"path"`
	Param   string `json:"param"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

type wireError struct {
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Errors  []wireIssue `json:"errors"`
	// Details holds either a message string or a list of issues.
	Details sonic.NoCopyRawMessage `json:"details"`
}

func (c *HTTPClient) toDomain(w wireTask) (domain.Task, error) {
	status, err := c.labels.Decode(w.Status)
	if err != nil {
		return domain.Task{}, err
	}
	id := w.ID
	if id == "" {
		id = w.AltID
	}
	return domain.Task{
		ID:          id,
		Title:       w.Title,
		Description: w.Description,
		Status:      status,
		Position:    w.Position,
		CreatedAt:   w.CreatedAt,
		Labels:      w.Labels,
	}, nil
}

// List fetches the canonical task list.
func (c *HTTPClient) List(ctx context.Context) ([]domain.Task, error) {
	var wire []wireTask
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &wire); err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(wire))
	for _, w := range wire {
		t, err := c.toDomain(w)
		if err != nil {
			c.logger.WithError(err).WithField("task", w.ID+w.AltID).Warn("skipping task with unknown status")
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Create asks the API to create a task. The API assigns id, createdAt,
// status and position.
func (c *HTTPClient) Create(ctx context.Context, task domain.NewTask) (domain.Task, error) {
	var wire wireTask
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &wire); err != nil {
		return domain.Task{}, err
	}
	if wire.Status == "" {
		wire.Status = c.labels.Encode(domain.StatusTodo)
	}
	return c.toDomain(wire)
}

// Update sends a partial update. When the API answers without a body the
// returned task is zero.
func (c *HTTPClient) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	body := wirePatch{Title: patch.Title, Description: patch.Description, Position: patch.Position}
	if patch.Status != nil {
		s := c.labels.Encode(*patch.Status)
		body.Status = &s
	}
	var wire wireTask
	if err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), body, &wire); err != nil {
		return domain.Task{}, err
	}
	if wire.ID == "" && wire.AltID == "" {
		return domain.Task{}, nil
	}
	return c.toDomain(wire)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	fields := log.Fields{"method": method, "path": path, "duration_ms": float64(time.Since(start)) / float64(time.Millisecond)}
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("task api request failed")
		return &Error{Err: err}
	}
	defer resp.Body.Close()
	fields["status"] = resp.StatusCode
	c.logger.WithFields(fields).Debug("task api request")

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return &Error{StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	gwErr := &Error{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return gwErr
	}
	var body wireError
	if err := sonic.Unmarshal(data, &body); err != nil {
		if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			gwErr.Message = strings.TrimSpace(string(data))
		}
		return gwErr
	}
	issues := body.Errors
	if len(body.Details) > 0 {
		var details []wireIssue
		var detail string
		switch {
		case sonic.Unmarshal(body.Details, &details) == nil:
			issues = append(issues, details...)
		case sonic.Unmarshal(body.Details, &detail) == nil && body.Message == "":
			body.Message = detail
		}
	}
	gwErr.Message = body.Message
	if gwErr.Message == "" {
		gwErr.Message = body.Error
	}
	for _, is := range issues {
		field := firstNonEmpty(is.Field, is.Path, is.Param)
		msg := firstNonEmpty(is.Message, is.Msg)
		gwErr.Issues = append(gwErr.Issues, domain.FieldIssue{Field: field, Message: msg})
	}
	return gwErr
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

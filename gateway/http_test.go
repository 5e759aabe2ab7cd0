package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"

	"taskboard/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...HTTPOption) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	return NewHTTPClient(srv.URL+"/", logger, opts...)
}

func TestHTTPClientList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/tasks" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"_id":"a","title":"A","status":"todo","position":0,"createdAt":"2024-01-02T03:04:05Z"},
			{"id":"b","title":"B","status":"done","position":0,"createdAt":"2024-01-02T03:04:05Z","labels":[{"name":"bug","color":"red"}]},
			{"_id":"c","title":"C","status":"archived","position":0,"createdAt":"2024-01-02T03:04:05Z"}
		]`)
	})

	tasks, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d: %#v", len(tasks), tasks)
	}
	if tasks[0].ID != "a" || tasks[1].ID != "b" {
		t.Fatalf("unexpected ids: %q %q", tasks[0].ID, tasks[1].ID)
	}
	if tasks[1].Status != domain.StatusDone || len(tasks[1].Labels) != 1 {
		t.Fatalf("unexpected task: %#v", tasks[1])
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !tasks[0].CreatedAt.Equal(want) {
		t.Fatalf("createdAt = %v, want %v", tasks[0].CreatedAt, want)
	}
}

func TestHTTPClientUpdateEncodesStatusLabel(t *testing.T) {
	labels, err := domain.ParseStatusLabels("todo=Pendiente,in_progress=En progreso,done=Completada")
	if err != nil {
		t.Fatalf("parse labels: %v", err)
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tasks/t1" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["status"] != "Completada" {
			t.Fatalf("status = %v", body["status"])
		}
		if _, ok := body["title"]; ok {
			t.Fatalf("unexpected title in patch: %v", body)
		}
		_, _ = io.WriteString(w, `{"_id":"t1","title":"T","status":"Completada","position":2}`)
	}, WithStatusLabels(labels))

	done := domain.StatusDone
	task, err := c.Update(context.Background(), "t1", domain.TaskPatch{Status: &done})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.Status != domain.StatusDone || task.Position != 2 {
		t.Fatalf("unexpected task: %#v", task)
	}
}

func TestHTTPClientUpdateNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	task, err := c.Update(context.Background(), "t1", domain.TaskPatch{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.ID != "" {
		t.Fatalf("expected zero task, got %#v", task)
	}
}

func TestHTTPClientCreateDefaultsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"_id":"n1","title":"New","position":3}`)
	})
	task, err := c.Create(context.Background(), domain.NewTask{Title: "New"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "n1" || task.Status != domain.StatusTodo {
		t.Fatalf("unexpected task: %#v", task)
	}
}

func TestHTTPClientDecodesErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantIssues  int
	}{
		{name: "message", status: 400, body: `{"message":"title is too long"}`, wantMessage: "title is too long"},
		{name: "error key", status: 500, body: `{"error":"boom"}`, wantMessage: "boom"},
		{name: "issues", status: 422, body: `{"errors":[{"path":"title","msg":"required"},{"field":"status","message":"invalid"}]}`, wantMessage: "title: required; status: invalid", wantIssues: 2},
		{name: "details list", status: 400, body: `{"details":[{"field":"title","message":"required"}]}`, wantMessage: "title: required", wantIssues: 1},
		{name: "details string", status: 400, body: `{"details":"duplicate title"}`, wantMessage: "duplicate title"},
		{name: "plain text", status: 502, body: "bad gateway", wantMessage: "bad gateway"},
		{name: "empty", status: 503, body: "", wantMessage: "could not move task"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Update(context.Background(), "t1", domain.TaskPatch{})
			var gwErr *Error
			if !errors.As(err, &gwErr) {
				t.Fatalf("expected *Error, got %T %v", err, err)
			}
			if gwErr.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", gwErr.StatusCode, tt.status)
			}
			if got := MessageFrom(err, "could not move task"); got != tt.wantMessage {
				t.Fatalf("message = %q, want %q", got, tt.wantMessage)
			}
			if len(IssuesFrom(err)) != tt.wantIssues {
				t.Fatalf("issues = %v", IssuesFrom(err))
			}
		})
	}
}

func TestHTTPClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	logger, hook := test.NewNullLogger()
	c := NewHTTPClient(srv.URL, logger)

	_, err := c.List(context.Background())
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.StatusCode != 0 {
		t.Fatalf("expected transport *Error, got %v", err)
	}
	if MessageFrom(err, "fallback") != "fallback" {
		t.Fatalf("transport errors should use the fallback message")
	}
	if hook.LastEntry() == nil {
		t.Fatalf("expected failure to be logged")
	}
}

func TestMessageFromNonGatewayError(t *testing.T) {
	if got := MessageFrom(errors.New("x"), "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
	if IssuesFrom(nil) != nil {
		t.Fatalf("expected no issues")
	}
}

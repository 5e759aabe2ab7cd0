package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalIncludesZeroPosition(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Status: StatusTodo, Position: 0}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"position\":0") {
		t.Fatalf("expected position field to be present, got %s", payload)
	}
}

func TestTaskPatchMarshalOmitsNilFields(t *testing.T) {
	status := StatusDone
	pos := 0
	payload, err := sonic.Marshal(TaskPatch{Status: &status, Position: &pos})
	if err != nil {
		t.Fatalf("marshal patch: %v", err)
	}
	if got := string(payload); got != `{"status":"done","position":0}` {
		t.Fatalf("unexpected patch payload: %s", got)
	}
}

func TestValidateTitle(t *testing.T) {
	for _, title := range []string{"", "   ", "\t\n"} {
		err := ValidateTitle(title)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error for %q, got %v", title, err)
		}
		if vErr.Field != "title" {
			t.Fatalf("unexpected field: %s", vErr.Field)
		}
	}
	if err := ValidateTitle("X"); err != nil {
		t.Fatalf("expected valid title, got %v", err)
	}
}

func TestCloneTasksCopiesLabels(t *testing.T) {
	src := []Task{{ID: "1", Labels: []Label{{Name: "bug", Color: "#f00"}}}}
	dup := CloneTasks(src)
	dup[0].Labels[0].Name = "feature"
	if src[0].Labels[0].Name != "bug" {
		t.Fatalf("clone shares label storage with source")
	}
}

func TestStatusLabelsRoundTrip(t *testing.T) {
	labels, err := ParseStatusLabels("todo=Pendiente, in_progress=En progreso ,done=Completada")
	if err != nil {
		t.Fatalf("parse labels: %v", err)
	}
	if got := labels.Encode(StatusInProgress); got != "En progreso" {
		t.Fatalf("unexpected label: %q", got)
	}
	s, err := labels.Decode("Completada")
	if err != nil || s != StatusDone {
		t.Fatalf("decode Completada = %q, %v", s, err)
	}
	if _, err := labels.Decode("Archivada"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
}

func TestParseStatusLabelsRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing_separator": "todo",
		"unknown_status":    "archived=Old",
		"empty_label":       "todo=",
		"duplicate_label":   "todo=Open,in_progress=Open",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseStatusLabels(raw); err == nil {
				t.Fatalf("expected error for %q", raw)
			}
		})
	}
}

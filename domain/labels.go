package domain

import (
	"fmt"
	"strings"
)

// StatusLabels maps board statuses to the labels a remote task API uses on
// the wire. A remote API may use localized labels while the board keeps the
// fixed status semantics.
type StatusLabels map[Status]string

// DefaultStatusLabels uses the status values themselves as labels.
func DefaultStatusLabels() StatusLabels {
	return StatusLabels{
		StatusTodo:       string(StatusTodo),
		StatusInProgress: string(StatusInProgress),
		StatusDone:       string(StatusDone),
	}
}

// ParseStatusLabels parses "todo=Pendiente,in_progress=En progreso,done=Completada".
// Statuses that are not mentioned keep their default label.
func ParseStatusLabels(raw string) (StatusLabels, error) {
	labels := DefaultStatusLabels()
	if strings.TrimSpace(raw) == "" {
		return labels, nil
	}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("status label %q: expected status=label", part)
		}
		s := Status(strings.TrimSpace(kv[0]))
		if !s.Valid() {
			return nil, fmt.Errorf("status label %q: %w", part, ErrInvalidStatus)
		}
		label := strings.TrimSpace(kv[1])
		if label == "" {
			return nil, fmt.Errorf("status label %q: empty label", part)
		}
		labels[s] = label
	}
	seen := make(map[string]Status, len(labels))
	for s, l := range labels {
		if prev, ok := seen[l]; ok {
			return nil, fmt.Errorf("label %q used for both %s and %s", l, prev, s)
		}
		seen[l] = s
	}
	return labels, nil
}

// Encode returns the wire label for s.
func (l StatusLabels) Encode(s Status) string {
	if v, ok := l[s]; ok {
		return v
	}
	return string(s)
}

// Decode maps a wire label back to a status.
func (l StatusLabels) Decode(label string) (Status, error) {
	for s, v := range l {
		if v == label {
			return s, nil
		}
	}
	if s := Status(label); s.Valid() {
		return s, nil
	}
	return "", fmt.Errorf("status label %q: %w", label, ErrInvalidStatus)
}

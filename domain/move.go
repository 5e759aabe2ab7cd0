package domain

import "sort"

// RequiresConfirmation reports whether moving a task between the two
// statuses needs explicit user sign-off: sending a task back to Todo or
// marking it Done from another column.
func RequiresConfirmation(from, to Status) bool {
	if from == to {
		return false
	}
	return to == StatusTodo || to == StatusDone
}

// Column returns the tasks with the given status ordered by position.
// Ties keep their relative order in tasks.
func Column(tasks []Task, status Status) []Task {
	col := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == status {
			col = append(col, t)
		}
	}
	sort.SliceStable(col, func(i, j int) bool { return col[i].Position < col[j].Position })
	return col
}

// Locate returns the task with the given id and its index within its column.
func Locate(tasks []Task, id string) (Task, int, bool) {
	for _, t := range tasks {
		if t.ID != id {
			continue
		}
		for i, c := range Column(tasks, t.Status) {
			if c.ID == id {
				return t, i, true
			}
		}
	}
	return Task{}, -1, false
}

// MoveTask returns a new flat task list with the task id moved into the
// to column at index. A nil index appends the task to the end of the
// column. The index is clamped to the column bounds and becomes the moved
// task's position. Only the moved task changes: the remote API is told the
// moved task's position alone, so every other position stays as the API
// stored it. The flat list is rebuilt column by column in display order
// with the moved task ahead of any task sharing its position; tasks with an
// unknown status follow unchanged.
func MoveTask(tasks []Task, id string, to Status, index *int) ([]Task, Task, bool) {
	if !to.Valid() {
		return nil, Task{}, false
	}
	var moved Task
	found := false
	without := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == id && !found {
			moved = t
			found = true
			continue
		}
		without = append(without, t)
	}
	if !found {
		return nil, Task{}, false
	}

	out := make([]Task, 0, len(tasks))
	for _, status := range Statuses() {
		col := Column(without, status)
		if status != to {
			out = append(out, col...)
			continue
		}
		at := len(col)
		if index != nil {
			at = clamp(*index, 0, len(col))
		}
		dest := make([]Task, 0, len(col)+1)
		dest = append(dest, col[:at]...)
		moved.Status, moved.Position = to, at
		dest = append(dest, moved)
		dest = append(dest, col[at:]...)
		out = append(out, dest...)
	}
	for _, t := range without {
		if !t.Status.Valid() {
			out = append(out, t)
		}
	}
	return CloneTasks(out), moved, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

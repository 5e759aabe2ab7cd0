package board

import (
	"sync"

	"taskboard/domain"
)

// Columns is the board grouped by status, each column ordered by position.
type Columns struct {
	Todo       []domain.Task `json:"todo"`
	InProgress []domain.Task `json:"in_progress"`
	Done       []domain.Task `json:"done"`
}

// Store holds the current task list and its derived progress. It performs
// no I/O. Every read returns a copy.
type Store struct {
	mu       sync.RWMutex
	tasks    []domain.Task
	progress domain.Progress
	version  uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tasks: []domain.Task{}}
}

// Tasks returns a copy of the current list.
func (s *Store) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneTasks(s.tasks)
}

// Progress returns the progress of the current list.
func (s *Store) Progress() domain.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Version increases with every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a copy of the current list together with its version.
func (s *Store) Snapshot() ([]domain.Task, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneTasks(s.tasks), s.version
}

// Find returns the task with the given id.
func (s *Store) Find(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return domain.CloneTasks([]domain.Task{t})[0], true
		}
	}
	return domain.Task{}, false
}

// Columns returns the three column views.
func (s *Store) Columns() Columns {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Columns{
		Todo:       domain.CloneTasks(domain.Column(s.tasks, domain.StatusTodo)),
		InProgress: domain.CloneTasks(domain.Column(s.tasks, domain.StatusInProgress)),
		Done:       domain.CloneTasks(domain.Column(s.tasks, domain.StatusDone)),
	}
}

// ReplaceAll swaps in a freshly fetched list.
func (s *Store) ReplaceAll(tasks []domain.Task) domain.Progress {
	return s.ReplaceWith(tasks)
}

// Append adds a newly created task. A task whose id is already present is
// ignored and false is returned.
func (s *Store) Append(task domain.Task) (domain.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == task.ID {
			return s.progress, false
		}
	}
	s.set(append(domain.CloneTasks(s.tasks), domain.CloneTasks([]domain.Task{task})...))
	return s.progress, true
}

// ReplaceWith swaps in a list computed by the caller, such as an optimistic
// move or a rollback snapshot.
func (s *Store) ReplaceWith(tasks []domain.Task) domain.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(domain.CloneTasks(tasks))
	return s.progress
}

// Update runs fn against the current list and version while holding the
// write lock. When fn reports a change its result replaces the list.
// fn must not call back into the store.
func (s *Store) Update(fn func(tasks []domain.Task, version uint64) ([]domain.Task, bool)) (domain.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed := fn(domain.CloneTasks(s.tasks), s.version)
	if !changed {
		return s.progress, false
	}
	s.set(domain.CloneTasks(next))
	return s.progress, true
}

func (s *Store) set(tasks []domain.Task) {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	s.tasks = tasks
	s.progress = domain.ComputeProgress(tasks)
	s.version++
}

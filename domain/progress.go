package domain

import "math"

// Progress is the aggregate completion of the board.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

// ComputeProgress derives progress from a task list. Percent is rounded
// half away from zero and is zero for an empty board.
func ComputeProgress(tasks []Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		if t.Status == StatusDone {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percent = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	}
	return p
}

// Complete reports whether every task on a non-empty board is done.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Percent == 100
}

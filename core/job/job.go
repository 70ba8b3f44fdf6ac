// Package job tracks background and stopped process groups.
package job

import (
	"sync"
)

// DefaultMaxJobs bounds the number of live (non-done) jobs in the table.
const DefaultMaxJobs = 128

// State is the lifecycle state of a job.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Done"
	}
}

// Job is a pipeline tracked by the shell. The pgid is the pid of the
// pipeline's leader; the id is a small integer unique for the shell's
// lifetime.
type Job struct {
	ID      int
	Pgid    int
	Cmdline string
	State   State
}

// Table holds jobs keyed by id and pgid. It is safe for concurrent use by
// the interactive loop and the status reaper.
type Table struct {
	mu     sync.Mutex
	max    int
	nextID int
	jobs   []*Job
}

// NewTable returns a table bounded to max live jobs. A max of zero means
// DefaultMaxJobs.
func NewTable(max int) *Table {
	if max <= 0 {
		max = DefaultMaxJobs
	}
	return &Table{max: max, nextID: 1}
}

// Add inserts a new job and returns it. When the table is full the job is
// silently dropped and nil is returned; the pipeline still runs, it just
// cannot be controlled with fg/bg.
func (t *Table) Add(pgid int, cmdline string, state State) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := 0
	for _, j := range t.jobs {
		if j.State != Done {
			live++
		}
	}
	if live >= t.max {
		return nil
	}
	j := &Job{ID: t.nextID, Pgid: pgid, Cmdline: cmdline, State: state}
	t.nextID++
	t.jobs = append(t.jobs, j)
	return j
}

// ByID finds a job by its shell-assigned id.
func (t *Table) ByID(id int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// SetState transitions the job with the given pgid. It is a no-op when no
// such job exists, which makes concurrent transitions from the reaper
// idempotent against removal by the interactive loop.
func (t *Table) SetState(pgid int, state State) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.Pgid == pgid {
			j.State = state
			return j
		}
	}
	return nil
}

// SetStateByID transitions the job with the given id.
func (t *Table) SetStateByID(id int, state State) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.ID == id {
			j.State = state
			return j
		}
	}
	return nil
}

// MarkRunning transitions a job by id, for fg/bg.
func (t *Table) MarkRunning(id int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.ID == id {
			j.State = Running
			return j
		}
	}
	return nil
}

// Jobs returns a snapshot of the table in insertion order.
func (t *Table) Jobs() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, *j)
	}
	return out
}

// ReapDone removes finished jobs from the table and returns them so the
// caller can print completion notices.
func (t *Table) ReapDone() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	var done []Job
	kept := t.jobs[:0]
	for _, j := range t.jobs {
		if j.State == Done {
			done = append(done, *j)
			continue
		}
		kept = append(kept, j)
	}
	t.jobs = kept
	return done
}

// Running reports the number of jobs currently in the Running state.
func (t *Table) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, j := range t.jobs {
		if j.State == Running {
			n++
		}
	}
	return n
}

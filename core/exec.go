package core

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"josephlewis.net/mysh/core/job"
	"josephlewis.net/mysh/core/parse"
	"josephlewis.net/mysh/core/term"
)

// stage is one launched pipeline member: either an external process or a
// builtin running on its own goroutine.
type stage struct {
	proc    *os.Process
	builtin bool
	status  int
}

// Execute runs a pipeline and returns its exit status. Foreground pipelines
// are fully reaped (or stopped) before it returns; background pipelines
// return immediately after the job is registered. The first command's
// leading word is taken as already alias-expanded (Interpret expands it on
// the raw line); only the later commands are alias-expanded here.
func (s *Shell) Execute(pl parse.Pipeline, rawline string) int {
	if len(pl.Commands) > 1 {
		rest := parse.Pipeline{Commands: pl.Commands[1:]}
		s.expandCommandAliases(&rest)
	}

	// Single-builtin fast path: run in the shell process so state-mutating
	// builtins like cd see the real tables.
	if len(pl.Commands) == 1 && !pl.Background {
		c := &pl.Commands[0]
		if len(c.Argv) > 0 && c.Infile == "" && c.Outfile == "" && isBuiltin(c.Argv[0]) {
			return s.runBuiltin(c.Argv, builtinIO{in: s.stdin, out: s.stdout, err: s.stderr, inProcess: true})
		}
	}

	n := len(pl.Commands)
	pipes := make([]struct{ r, w *os.File }, 0, n-1)
	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			fmt.Fprintf(s.stderr, "mysh: pipe: %v\n", err)
			for _, p := range pipes {
				p.r.Close()
				p.w.Close()
			}
			return 1
		}
		pipes = append(pipes, struct{ r, w *os.File }{r, w})
	}

	var (
		wg           sync.WaitGroup
		stages       = make([]*stage, n)
		pgid         int
		parentCloses []*os.File
	)

	for i := range pl.Commands {
		c := &pl.Commands[i]
		if len(c.Argv) == 0 {
			continue
		}

		st := &stage{}
		stages[i] = st

		// Resolve the stage's endpoints. An explicit redirection wins over
		// the pipe endpoint; the unused pipe end is closed by the parent so
		// the neighbors see EOF / EPIPE as usual.
		var closers []*os.File

		in := s.stdin
		if i > 0 {
			in = pipes[i-1].r
		}
		if c.Infile != "" {
			fd, err := os.OpenFile(c.Infile, os.O_RDONLY, 0)
			if err != nil {
				fmt.Fprintf(s.stderr, "mysh: %s: %v\n", c.Infile, unwrapPathErr(err))
				st.status = 1
				continue
			}
			in = fd
			closers = append(closers, fd)
		}

		out := osFile(s.stdout)
		if i < n-1 {
			out = pipes[i].w
		}
		if c.Outfile != "" {
			flags := os.O_WRONLY | os.O_CREATE
			if c.Append {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			fd, err := os.OpenFile(c.Outfile, flags, 0644)
			if err != nil {
				fmt.Fprintf(s.stderr, "mysh: %s: %v\n", c.Outfile, unwrapPathErr(err))
				st.status = 1
				for _, fd := range closers {
					fd.Close()
				}
				continue
			}
			out = fd
			closers = append(closers, fd)
		}

		if isBuiltin(c.Argv[0]) {
			st.builtin = true
			argv := c.Argv
			stageIn, stageOut := in, out
			// The goroutine owns its pipe ends and closes them on return so
			// the neighboring stages observe EOF.
			if i > 0 && stageIn == pipes[i-1].r {
				closers = append(closers, pipes[i-1].r)
			}
			if i < n-1 && stageOut == pipes[i].w {
				closers = append(closers, pipes[i].w)
			}
			ownClosers := closers
			wg.Add(1)
			go func() {
				defer wg.Done()
				st.status = s.runBuiltin(argv, builtinIO{in: stageIn, out: stageOut, err: s.stderr})
				for _, fd := range ownClosers {
					fd.Close()
				}
			}()
			continue
		}

		parentCloses = append(parentCloses, closers...)

		path, err := exec.LookPath(c.Argv[0])
		if err != nil {
			fmt.Fprintf(s.stderr, "mysh: command not found: %s\n", c.Argv[0])
			st.status = 127
			continue
		}

		// The process-group assignment happens between fork and exec, so
		// there is no window where the child runs outside its group.
		proc, err := os.StartProcess(path, c.Argv, &os.ProcAttr{
			Env:   os.Environ(),
			Files: []*os.File{in, out, osFile(s.stderr)},
			Sys: &syscall.SysProcAttr{
				Setpgid: true,
				Pgid:    pgid,
			},
		})
		if err != nil {
			fmt.Fprintf(s.stderr, "mysh: %s: %v\n", c.Argv[0], err)
			st.status = 1
			continue
		}
		st.proc = proc
		if pgid == 0 {
			// The leftmost external child leads the group.
			pgid = proc.Pid
		}
	}

	// The parent retains no pipe or redirection descriptors: every read end
	// must see EOF once the writers exit.
	for i := range pipes {
		s.closeUnlessOwned(pipes[i].r, stages, pl.Commands, i, true)
		s.closeUnlessOwned(pipes[i].w, stages, pl.Commands, i, false)
	}
	for _, fd := range parentCloses {
		fd.Close()
	}

	if pl.Background {
		return s.launchBackground(pgid, rawline, stages, &wg)
	}
	return s.waitForegroundPipeline(pgid, rawline, stages, &wg)
}

// closeUnlessOwned closes a pipe end unless a builtin stage goroutine owns
// it and will close it itself.
func (s *Shell) closeUnlessOwned(f *os.File, stages []*stage, cmds []parse.Command, i int, read bool) {
	var owner int
	if read {
		owner = i + 1 // the stage reading from pipe i
	} else {
		owner = i // the stage writing into pipe i
	}
	if owner >= 0 && owner < len(stages) && stages[owner] != nil && stages[owner].builtin && stages[owner].proc == nil {
		c := &cmds[owner]
		// The builtin only took the pipe end when no redirection replaced it.
		if read && c.Infile == "" {
			return
		}
		if !read && c.Outfile == "" {
			return
		}
	}
	f.Close()
}

// launchBackground registers a background job and returns without waiting.
func (s *Shell) launchBackground(pgid int, rawline string, stages []*stage, wg *sync.WaitGroup) int {
	// When the table is full the job is dropped silently but the pipeline
	// still runs; it just cannot be controlled with fg/bg. Known gap
	// inherited from the table's fixed capacity.
	j := s.jobs.Add(pgid, rawline, job.Running)
	if j != nil {
		fmt.Fprintf(s.stdout, "[%d] %d\n", j.ID, pgid)
		s.log.Job(j.ID, pgid, job.Running.String())
	}

	if pgid == 0 && j != nil {
		// Builtin-only pipeline: nothing for the reaper to see, so the
		// completion transition comes from the stage goroutines.
		id := j.ID
		go func() {
			wg.Wait()
			s.jobs.SetStateByID(id, job.Done)
		}()
	}
	return 0
}

// waitForegroundPipeline gives the pipeline the terminal and waits until it
// exits or stops.
func (s *Shell) waitForegroundPipeline(pgid int, rawline string, stages []*stage, wg *sync.WaitGroup) int {
	status, stopped := 0, false
	if pgid != 0 {
		status, stopped = s.runForeground(pgid, func() {})
		if stopped {
			if j := s.jobs.Add(pgid, rawline, job.Stopped); j != nil {
				fmt.Fprintf(s.stdout, "[%d] %s\t%s\n",
					j.ID, s.printer.Sprintf(ColorYellow, "Stopped"), rawline)
				s.log.Job(j.ID, pgid, job.Stopped.String())
			}
			// Builtin stages piping into the stopped group may be blocked;
			// leave them to finish once the group resumes.
			return status
		}
	}

	wg.Wait()

	// A builtin or never-started last command supplies the pipeline's
	// status; otherwise it is the status of the last group member reaped.
	if last := lastStage(stages); last != nil && (last.builtin || last.proc == nil) {
		status = last.status
	}
	return status
}

// runForeground hands the terminal to pgid, continues it with onCont, and
// runs a single WUNTRACED wait loop until the group stops or is fully
// reaped. The terminal is always restored to the shell afterwards.
func (s *Shell) runForeground(pgid int, onCont func()) (status int, stopped bool) {
	s.signals.waitMu.Lock()
	defer s.signals.waitMu.Unlock()

	s.signals.setForegroundPgid(pgid)
	if s.interactive {
		if err := term.SetForeground(int(s.stdin.Fd()), pgid); err != nil {
			fmt.Fprintf(s.stderr, "mysh: tcsetpgrp: %v\n", err)
		}
	}
	onCont()

	for {
		var ws unix.WaitStatus
		_, err := unix.Wait4(-pgid, &ws, unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// ECHILD: every member of the group has been reaped.
			break
		}
		switch {
		case ws.Stopped():
			stopped = true
		case ws.Exited():
			status = ws.ExitStatus()
		case ws.Signaled():
			status = 128 + int(ws.Signal())
		}
		if stopped {
			break
		}
	}

	if s.interactive {
		if err := term.SetForeground(int(s.stdin.Fd()), s.shellPgid); err != nil {
			fmt.Fprintf(s.stderr, "mysh: tcsetpgrp: %v\n", err)
		}
	}
	s.signals.setForegroundPgid(0)

	// Collect any background transitions that queued up while this group
	// held the wait lock.
	s.reapLocked()

	return status, stopped
}

// foregroundJob implements fg: resume a job with the terminal.
func (s *Shell) foregroundJob(id int, io builtinIO) int {
	j := s.jobs.ByID(id)
	if j == nil || j.Pgid <= 0 {
		fmt.Fprintf(io.err, "mysh: fg: no such job: %d\n", id)
		return 1
	}
	s.jobs.MarkRunning(id)
	s.log.Job(j.ID, j.Pgid, job.Running.String())

	_, stopped := s.runForeground(j.Pgid, func() {
		if err := unix.Kill(-j.Pgid, unix.SIGCONT); err != nil {
			fmt.Fprintf(io.err, "mysh: kill(SIGCONT): %v\n", err)
		}
	})

	if stopped {
		s.jobs.SetStateByID(id, job.Stopped)
		s.log.Job(j.ID, j.Pgid, job.Stopped.String())
	} else {
		s.jobs.SetStateByID(id, job.Done)
	}
	return 0
}

// backgroundJob implements bg: resume a job without the terminal.
func (s *Shell) backgroundJob(id int, io builtinIO) int {
	j := s.jobs.ByID(id)
	if j == nil || j.Pgid <= 0 {
		fmt.Fprintf(io.err, "mysh: bg: no such job: %d\n", id)
		return 1
	}
	s.jobs.MarkRunning(id)
	s.log.Job(j.ID, j.Pgid, job.Running.String())
	if err := unix.Kill(-j.Pgid, unix.SIGCONT); err != nil {
		fmt.Fprintf(io.err, "mysh: kill(SIGCONT): %v\n", err)
		return 1
	}
	return 0
}

// expandCommandAliases re-applies alias expansion to each command of the
// pipeline. Expansion happens once per command, never recursively.
func (s *Shell) expandCommandAliases(pl *parse.Pipeline) {
	for i := range pl.Commands {
		c := &pl.Commands[i]
		if len(c.Argv) == 0 {
			continue
		}
		if _, ok := s.env.Alias(c.Argv[0]); !ok {
			continue
		}
		line := s.env.ExpandAliasLine(strings.Join(c.Argv, " "))
		var argv []string
		for _, t := range s.scanner.Split(line) {
			argv = append(argv, t.Text)
		}
		if len(argv) > 0 {
			c.Argv = argv
		}
	}
}

func lastStage(stages []*stage) *stage {
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i] != nil {
			return stages[i]
		}
	}
	return nil
}

// osFile converts the shell's stdio writer back to a concrete file for
// process inheritance. A writer that is not a file (tests swap in buffers)
// falls back to the process's own stdout.
func osFile(w interface{}) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return os.Stdout
}

func unwrapPathErr(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}

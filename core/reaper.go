package core

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"josephlewis.net/mysh/core/job"
)

// signalState carries everything the asynchronous signal plumbing shares
// with the interactive loop. The wait mutex serializes the reaper's
// nonblocking drains against the executor's blocking foreground wait so the
// two never compete for the same wait events; SIGCHLD deliveries during a
// foreground pipeline coalesce in the buffered channel and are drained
// right after the terminal is restored.
type signalState struct {
	waitMu  sync.Mutex
	fgPgid  int32
	sigchld chan os.Signal
	forward chan os.Signal
}

func (ss *signalState) setForegroundPgid(pgid int) {
	atomic.StoreInt32(&ss.fgPgid, int32(pgid))
}

func (ss *signalState) foregroundPgid() int {
	return int(atomic.LoadInt32(&ss.fgPgid))
}

// setupSignals installs the shell's signal handling:
//
//   - SIGTTOU/SIGTTIN are ignored process-wide so tcsetpgrp from a
//     background group cannot stop the shell.
//   - SIGCHLD feeds the reaper goroutine.
//   - SIGINT/SIGTSTP reaching the shell are forwarded to the foreground
//     group, or swallowed when there is none.
func (s *Shell) setupSignals() {
	signal.Ignore(unix.SIGTTOU, unix.SIGTTIN)

	s.signals.sigchld = make(chan os.Signal, 16)
	signal.Notify(s.signals.sigchld, unix.SIGCHLD)
	go s.reapLoop()

	s.signals.forward = make(chan os.Signal, 4)
	signal.Notify(s.signals.forward, unix.SIGINT, unix.SIGTSTP)
	go s.forwardLoop()
}

func (s *Shell) reapLoop() {
	for range s.signals.sigchld {
		s.Reap()
	}
}

// Reap drains pending child status changes into the job table.
func (s *Shell) Reap() {
	s.signals.waitMu.Lock()
	defer s.signals.waitMu.Unlock()
	s.reapLocked()
}

// reapLocked consumes every pending wait event without blocking. Callers
// hold the wait mutex.
func (s *Shell) reapLocked() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err != nil || pid <= 0 {
			return
		}

		// The job is keyed by process group; for an already-exited leader
		// getpgid fails and the pid itself is the group.
		pgid, perr := unix.Getpgid(pid)
		if perr != nil {
			pgid = pid
		}

		var state job.State
		switch {
		case ws.Exited() || ws.Signaled():
			state = job.Done
		case ws.Stopped():
			state = job.Stopped
		case ws.Continued():
			state = job.Running
		default:
			continue
		}

		j := s.jobs.SetState(pgid, state)
		if j == nil && pgid != pid {
			j = s.jobs.SetState(pid, state)
		}
		if j != nil {
			s.log.Job(j.ID, j.Pgid, state.String())
		}
	}
}

// forwardLoop relays terminal signals that reached the shell itself to the
// foreground process group.
func (s *Shell) forwardLoop() {
	for sig := range s.signals.forward {
		if pgid := s.signals.foregroundPgid(); pgid > 0 {
			if usig, ok := sig.(syscall.Signal); ok {
				_ = unix.Kill(-pgid, usig)
			}
		}
	}
}

// Package core implements the interactive shell: the read/expand/parse loop,
// the pipeline executor, the job table, and the signal-driven status reaper.
package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/readline"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"josephlewis.net/mysh/core/config"
	"josephlewis.net/mysh/core/history"
	"josephlewis.net/mysh/core/job"
	"josephlewis.net/mysh/core/logger"
	"josephlewis.net/mysh/core/parse"
	"josephlewis.net/mysh/core/term"
	"josephlewis.net/mysh/core/token"
)

// Shell owns all interpreter state: the alias/variable tables, the history
// ring, the job table, and the terminal. One Shell serves one session.
type Shell struct {
	Config   *config.Configuration
	Readline *readline.Instance

	env     *Env
	hist    *history.Ring
	jobs    *job.Table
	scanner *token.Scanner
	printer *Printer
	log     *logger.SessionLogger

	stateFs afero.Fs
	home    string
	user    string

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	interactive bool
	shellPgid   int

	signals signalState

	lastStatus  int
	exitPending bool
}

// NewShell builds a shell against the real terminal. State persistence goes
// through stateFs so tests can run on a memory filesystem.
func NewShell(cfg *config.Configuration, stateFs afero.Fs, sessionLog *logger.SessionLogger) (*Shell, error) {
	s := newShell(cfg, stateFs, sessionLog)

	rl, err := readline.NewEx(&readline.Config{
		Stdin:  s.stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		FuncIsTerminal: func() bool {
			return s.interactive
		},
	})
	if err != nil {
		return nil, err
	}
	s.Readline = rl
	return s, nil
}

// newShell wires everything except the line editor, for tests.
func newShell(cfg *config.Configuration, stateFs afero.Fs, sessionLog *logger.SessionLogger) *Shell {
	if sessionLog == nil {
		sessionLog = logger.NewNopLogger().NewSession()
	}

	s := &Shell{
		Config:  cfg,
		env:     NewEnv(),
		hist:    history.NewRing(cfg.HistoryLimit),
		jobs:    job.NewTable(cfg.MaxJobs),
		printer: NewPrinter(cfg.Color),
		log:     sessionLog,
		stateFs: stateFs,
		home:    homeDir(),
		user:    userName(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	s.interactive = term.IsInteractive(s.stdin.Fd())
	s.scanner = &token.Scanner{
		MaxTokens: cfg.MaxTokens,
		Lookup:    s.lookupVar,
	}

	for name, value := range cfg.Aliases {
		s.env.SetAlias(name, value)
	}
	for name, value := range cfg.Vars {
		s.env.SetVar(name, value)
	}

	return s
}

// lookupVar resolves $VAR expansion: shell variables shadow the process
// environment; unknown names expand to the empty string.
func (s *Shell) lookupVar(name string) (string, bool) {
	if v, ok := s.env.Var(name); ok {
		return v, true
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	return "", true
}

// LoadState reads the persisted history ring and alias/variable tables.
// Missing files are fine on first run.
func (s *Shell) LoadState() {
	_ = s.hist.Load(s.stateFs, s.Config.HistoryPath(s.home))
	_ = s.env.Load(s.stateFs, s.Config.StatePath(s.home))
}

// SaveState rewrites both persistence files. Failures are deliberately
// silent: persistence is best-effort and never fatal.
func (s *Shell) SaveState() {
	_ = s.hist.Save(s.stateFs, s.Config.HistoryPath(s.home))
	_ = s.env.Save(s.stateFs, s.Config.StatePath(s.home))
}

// Run drives the interactive loop until exit or EOF. The returned status is
// the shell's process exit code.
func (s *Shell) Run() int {
	s.takeTerminal()
	s.setupSignals()
	s.log.SessionStart()
	defer s.log.SessionEnd()

	if s.Config.Motd != "" {
		fmt.Fprintln(s.stdout, s.Config.Motd)
	}

	for {
		s.printJobNotices()

		s.Readline.SetPrompt(s.prompt())
		line, err := s.Readline.Readline()

		switch {
		case err == io.EOF:
			// Input closed; behave like the exit builtin.
			fmt.Fprintln(s.stdout)
			s.SaveState()
			return 0

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			log.Printf("readline: %v", err)
			continue
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		rawline, ok := s.expandHistoryRef(line)
		if !ok {
			continue
		}

		s.hist.Push(rawline)

		if stripped, ok := previewLine(rawline); ok {
			s.printPreview(stripped)
			continue
		}

		status := s.Interpret(rawline)
		s.lastStatus = status

		if s.exitPending {
			s.SaveState()
			return 0
		}
	}
}

// Interpret expands, parses, and executes one raw input line and returns
// its exit status.
func (s *Shell) Interpret(rawline string) int {
	expanded := s.env.ExpandAliasLine(rawline)
	toks := s.scanner.Split(expanded)
	if len(toks) == 0 {
		return 0
	}

	pl := parse.Parse(toks)
	if pl.Empty() {
		return 0
	}

	status := s.Execute(pl, rawline)
	s.log.Exec(rawline, status, pl.Background)
	return status
}

// expandHistoryRef applies !k history expansion. The second return is false
// when the line referenced a nonexistent entry and must be discarded.
func (s *Shell) expandHistoryRef(line string) (string, bool) {
	if len(line) < 2 || line[0] != '!' {
		return line, true
	}
	k, err := strconv.Atoi(line[1:])
	if err != nil || k < 1 {
		// Not a history reference, run it as-is.
		return line, true
	}
	entry, ok := s.hist.At(k)
	if !ok {
		fmt.Fprintf(s.stderr, "mysh: !%d: no such history entry\n", k)
		return "", false
	}
	fmt.Fprintln(s.stdout, entry)
	return entry, true
}

// previewLine reports whether the raw line asks for a token preview and
// returns it with the trailing question mark stripped.
func previewLine(line string) (string, bool) {
	if !strings.HasSuffix(line, "?") {
		return line, false
	}
	return strings.TrimSuffix(line, "?"), true
}

// printPreview shows the tokenization of a line without executing it.
func (s *Shell) printPreview(line string) {
	toks := s.scanner.Split(s.env.ExpandAliasLine(line))
	var parts []string
	for _, t := range toks {
		parts = append(parts, "'"+t.Text+"'")
	}
	fmt.Fprintf(s.stdout, "tokens: %s\n", strings.Join(parts, " "))
}

// printJobNotices surfaces background jobs that finished since the last
// prompt and drops them from the table.
func (s *Shell) printJobNotices() {
	for _, j := range s.jobs.ReapDone() {
		fmt.Fprintf(s.stdout, "[%d] %s\t%s\n",
			j.ID, s.printer.Sprintf(ColorBoldGreen, "Done"), j.Cmdline)
		s.log.Job(j.ID, j.Pgid, "Done")
	}
}

// takeTerminal puts the shell into its own process group and makes that
// group the terminal's foreground group.
func (s *Shell) takeTerminal() {
	pid := unix.Getpid()
	if err := unix.Setpgid(pid, pid); err != nil && err != unix.EPERM {
		log.Printf("setpgid: %v", err)
	}
	s.shellPgid, _ = unix.Getpgid(pid)

	if s.interactive {
		if err := term.SetForeground(int(s.stdin.Fd()), s.shellPgid); err != nil {
			log.Printf("tcsetpgrp: %v", err)
		}
	}
}

// prompt renders the interactive prompt: status glyph, user@host, clock,
// working directory, and a background job count when jobs are live.
func (s *Shell) prompt() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "?"
	}
	if cwd == s.home || strings.HasPrefix(cwd, s.home+"/") {
		cwd = "~" + strings.TrimPrefix(cwd, s.home)
	}

	glyph := s.printer.Sprintf(ColorBoldGreen, "✓")
	if s.lastStatus != 0 {
		glyph = s.printer.Sprintf(ColorBoldRed, "✗")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s@%s • %s • %s",
		glyph,
		s.printer.Sprintf(ColorBoldCyan, "%s", s.user),
		s.printer.Sprintf(ColorBoldCyan, "%s", host),
		time.Now().Format("15:04"),
		s.printer.Sprintf(ColorBoldBlue, "%s", cwd))

	if n := s.jobs.Running(); n > 0 {
		fmt.Fprintf(&sb, " [bg:%d]", n)
	}
	sb.WriteString(" ➜ ")
	return sb.String()
}

// Close releases the line editor.
func (s *Shell) Close() error {
	if s.Readline != nil {
		return s.Readline.Close()
	}
	return nil
}

// homeDir resolves $HOME with a passwd fallback, defaulting to the root
// directory so path expansion always has something to work with.
func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return "/"
}

func userName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "user"
}

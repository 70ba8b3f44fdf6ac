package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
)

// builtinIO is the stdio a builtin invocation runs against. Builtins in
// pipelines or under redirection get the pipe/file endpoints; the fast path
// gets the shell's own stdio and may mutate shell state.
type builtinIO struct {
	in  io.Reader
	out io.Writer
	err io.Writer

	// inProcess marks the single-builtin fast path, where exit may
	// terminate the interactive loop.
	inProcess bool
}

type builtinFunc func(s *Shell, io builtinIO, argv []string) int

// builtinEntry registers one builtin for dispatch and for help rendering.
type builtinEntry struct {
	Name  string
	Use   string
	Short string
	Run   builtinFunc
}

var builtinRegistry = map[string]*builtinEntry{}

func registerBuiltin(e *builtinEntry) {
	builtinRegistry[e.Name] = e
}

// isBuiltin reports whether name dispatches in-process.
func isBuiltin(name string) bool {
	_, ok := builtinRegistry[name]
	return ok
}

// runBuiltin dispatches a builtin invocation.
func (s *Shell) runBuiltin(argv []string, io builtinIO) int {
	if len(argv) == 0 {
		return 0
	}
	e, ok := builtinRegistry[argv[0]]
	if !ok {
		return 127
	}
	return e.Run(s, io, argv)
}

// simpleBuiltin wraps getopt flag parsing and uniform help output for the
// builtins that take options.
type simpleBuiltin struct {
	// Use holds a one line usage string.
	Use string
	// Short holds a one line description of the command.
	Short string

	flags *getopt.Set
}

// Flags gets the builtin's flag set.
func (b *simpleBuiltin) Flags() *getopt.Set {
	if b.flags == nil {
		b.flags = getopt.New()
	}
	return b.flags
}

// PrintHelp writes help for the builtin to the given writer.
func (b *simpleBuiltin) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, b.Use)
	fmt.Fprintln(w, b.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	b.Flags().PrintOptions(w)
}

// Run the builtin, calling back only when flag parsing succeeded.
func (b *simpleBuiltin) Run(io builtinIO, argv []string, callback func(args []string) int) int {
	opts := b.Flags()
	showHelp := opts.BoolLong("help", 'h', "show this help and exit")

	if err := opts.Getopt(argv, nil); err != nil {
		fmt.Fprintf(io.err, "mysh: %s: %s\n", argv[0], err)
		b.PrintHelp(io.err)
		return 1
	}
	if *showHelp {
		b.PrintHelp(io.out)
		return 0
	}
	return callback(opts.Args())
}

func init() {
	registerBuiltin(&builtinEntry{
		Name: "cd", Use: "cd [dir]",
		Short: "Change the working directory, defaulting to home.",
		Run:   builtinCd,
	})
	registerBuiltin(&builtinEntry{
		Name: "exit", Use: "exit",
		Short: "Persist state and terminate the shell.",
		Run:   builtinExit,
	})
	registerBuiltin(&builtinEntry{
		Name: "mkdir", Use: "mkdir PATH...",
		Short: "Create directories.",
		Run:   builtinMkdir,
	})
	registerBuiltin(&builtinEntry{
		Name: "touch", Use: "touch PATH...",
		Short: "Create empty files.",
		Run:   builtinTouch,
	})
	registerBuiltin(&builtinEntry{
		Name: "clear", Use: "clear",
		Short: "Clear the terminal display.",
		Run:   builtinClear,
	})
	registerBuiltin(&builtinEntry{
		Name: "help", Use: "help",
		Short: "List builtin commands.",
		Run:   builtinHelp,
	})
	registerBuiltin(&builtinEntry{
		Name: "history", Use: "history [-n COUNT]",
		Short: "Print the command history.",
		Run:   builtinHistory,
	})
	registerBuiltin(&builtinEntry{
		Name: "histsearch", Use: "histsearch TERM",
		Short: "Search the command history.",
		Run:   builtinHistsearch,
	})
	registerBuiltin(&builtinEntry{
		Name: "jobs", Use: "jobs [-l]",
		Short: "List background and stopped jobs.",
		Run:   builtinJobs,
	})
	registerBuiltin(&builtinEntry{
		Name: "fg", Use: "fg ID",
		Short: "Resume a job in the foreground.",
		Run:   builtinFg,
	})
	registerBuiltin(&builtinEntry{
		Name: "bg", Use: "bg ID",
		Short: "Resume a job in the background.",
		Run:   builtinBg,
	})
	registerBuiltin(&builtinEntry{
		Name: "alias", Use: "alias [NAME VALUE... | NAME=VALUE]",
		Short: "List aliases or define one.",
		Run:   builtinAlias,
	})
	registerBuiltin(&builtinEntry{
		Name: "unalias", Use: "unalias NAME",
		Short: "Remove an alias.",
		Run:   builtinUnalias,
	})
	registerBuiltin(&builtinEntry{
		Name: "aliases", Use: "aliases",
		Short: "List aliases.",
		Run: func(s *Shell, io builtinIO, argv []string) int {
			return builtinAlias(s, io, argv[:1])
		},
	})
	registerBuiltin(&builtinEntry{
		Name: "set", Use: "set NAME VALUE | set NAME=VALUE",
		Short: "Set a shell variable.",
		Run:   builtinSet,
	})
	registerBuiltin(&builtinEntry{
		Name: "unset", Use: "unset NAME",
		Short: "Remove a shell variable.",
		Run:   builtinUnset,
	})
	registerBuiltin(&builtinEntry{
		Name: "vars", Use: "vars",
		Short: "List shell variables.",
		Run:   builtinVars,
	})
}

func builtinCd(s *Shell, io builtinIO, argv []string) int {
	dir := s.home
	if len(argv) > 1 {
		dir = ExpandTilde(argv[1], s.home)
	}
	if !io.inProcess {
		// In a pipeline or under redirection the directory change would
		// have been confined to a child; only the status is observable.
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			fmt.Fprintf(io.err, "mysh: cd: %s: not a directory\n", dir)
			return 1
		}
		return 0
	}
	if err := os.Chdir(dir); err != nil {
		fmt.Fprintf(io.err, "mysh: cd: %v\n", unwrapPathErr(err))
		return 1
	}
	return 0
}

func builtinExit(s *Shell, io builtinIO, argv []string) int {
	if io.inProcess {
		s.SaveState()
		s.exitPending = true
	}
	return 0
}

func builtinMkdir(s *Shell, io builtinIO, argv []string) int {
	b := &simpleBuiltin{Use: "mkdir PATH...", Short: "Create directories with mode 0755."}
	return b.Run(io, argv, func(args []string) int {
		if len(args) == 0 {
			fmt.Fprintln(io.err, "mysh: mkdir: missing operand")
			return 1
		}
		for _, path := range args {
			if err := os.Mkdir(ExpandTilde(path, s.home), 0755); err != nil {
				fmt.Fprintf(io.err, "mysh: mkdir: %s: %v\n", path, unwrapPathErr(err))
			}
		}
		return 0
	})
}

func builtinTouch(s *Shell, io builtinIO, argv []string) int {
	b := &simpleBuiltin{Use: "touch PATH...", Short: "Create empty files with mode 0644."}
	return b.Run(io, argv, func(args []string) int {
		if len(args) == 0 {
			fmt.Fprintln(io.err, "mysh: touch: missing file operand")
			return 1
		}
		for _, path := range args {
			fd, err := os.OpenFile(ExpandTilde(path, s.home), os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				fmt.Fprintf(io.err, "mysh: touch: %s: %v\n", path, unwrapPathErr(err))
				continue
			}
			fd.Close()
		}
		return 0
	})
}

func builtinClear(s *Shell, io builtinIO, argv []string) int {
	fmt.Fprint(io.out, "\x1b[H\x1b[2J")
	return 0
}

func builtinHelp(s *Shell, io builtinIO, argv []string) int {
	names := make([]string, 0, len(builtinRegistry))
	for name := range builtinRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(io.out, "Builtin commands:")
	tw := tabwriter.NewWriter(io.out, 8, 8, 2, ' ', 0)
	for _, name := range names {
		e := builtinRegistry[name]
		fmt.Fprintf(tw, "  %s\t%s\n", e.Use, e.Short)
	}
	tw.Flush()
	return 0
}

func builtinHistory(s *Shell, io builtinIO, argv []string) int {
	b := &simpleBuiltin{Use: "history [-n COUNT]", Short: "Print the command history with 1-based indices."}
	count := b.Flags().IntLong("count", 'n', 0, "only show the last COUNT entries")
	return b.Run(io, argv, func(args []string) int {
		lines := s.hist.Lines()
		start := 0
		if *count > 0 && len(lines) > *count {
			start = len(lines) - *count
		}
		for i := start; i < len(lines); i++ {
			fmt.Fprintf(io.out, "%5d  %s\n", i+1, lines[i])
		}
		return 0
	})
}

func builtinHistsearch(s *Shell, io builtinIO, argv []string) int {
	b := &simpleBuiltin{Use: "histsearch TERM", Short: "Print history entries containing TERM."}
	return b.Run(io, argv, func(args []string) int {
		if len(args) != 1 {
			fmt.Fprintln(io.err, "mysh: histsearch: usage: histsearch TERM")
			return 1
		}
		idx, lines := s.hist.Search(args[0])
		if len(idx) == 0 {
			fmt.Fprintf(io.out, "no matches for: %s\n", args[0])
			return 0
		}
		for i := range idx {
			fmt.Fprintf(io.out, "%5d  %s\n", idx[i], lines[i])
		}
		return 0
	})
}

func builtinJobs(s *Shell, io builtinIO, argv []string) int {
	b := &simpleBuiltin{Use: "jobs [-l]", Short: "List background and stopped jobs."}
	long := b.Flags().BoolLong("long", 'l', "also print the process group id")
	return b.Run(io, argv, func(args []string) int {
		for _, j := range s.jobs.Jobs() {
			state := s.printer.Sprintf(stateColor(j.State.String()), "%-8s", j.State)
			if *long {
				fmt.Fprintf(io.out, "[%d]  %s %6d  %s\n", j.ID, state, j.Pgid, j.Cmdline)
			} else {
				fmt.Fprintf(io.out, "[%d]  %s %s\n", j.ID, state, j.Cmdline)
			}
		}
		if io.inProcess {
			s.jobs.ReapDone()
		}
		return 0
	})
}

func builtinFg(s *Shell, io builtinIO, argv []string) int {
	if !io.inProcess {
		fmt.Fprintln(io.err, "mysh: fg: no job control in this context")
		return 1
	}
	id, ok := jobID(io, argv)
	if !ok {
		return 1
	}
	return s.foregroundJob(id, io)
}

func builtinBg(s *Shell, io builtinIO, argv []string) int {
	if !io.inProcess {
		fmt.Fprintln(io.err, "mysh: bg: no job control in this context")
		return 1
	}
	id, ok := jobID(io, argv)
	if !ok {
		return 1
	}
	return s.backgroundJob(id, io)
}

func jobID(io builtinIO, argv []string) (int, bool) {
	if len(argv) < 2 {
		fmt.Fprintf(io.err, "mysh: %s: usage: %s ID\n", argv[0], argv[0])
		return 0, false
	}
	id, err := strconv.Atoi(argv[1])
	if err != nil || id < 1 {
		fmt.Fprintf(io.err, "mysh: %s: bad job id: %s\n", argv[0], argv[1])
		return 0, false
	}
	return id, true
}

func builtinAlias(s *Shell, io builtinIO, argv []string) int {
	switch {
	case len(argv) == 1:
		for _, kv := range s.env.Aliases() {
			fmt.Fprintf(io.out, "%s → %s\n", kv[0], kv[1])
		}
		return 0
	case len(argv) == 2 && strings.ContainsRune(argv[1], '='):
		name, value, _ := splitEntry(argv[1])
		if name == "" {
			fmt.Fprintln(io.err, "mysh: alias: usage: alias NAME VALUE")
			return 1
		}
		if io.inProcess {
			s.env.SetAlias(name, value)
		}
		return 0
	case len(argv) >= 3:
		if io.inProcess {
			s.env.SetAlias(argv[1], strings.Join(argv[2:], " "))
		}
		return 0
	default:
		fmt.Fprintln(io.err, "mysh: alias: usage: alias NAME VALUE")
		return 1
	}
}

func builtinUnalias(s *Shell, io builtinIO, argv []string) int {
	if len(argv) < 2 {
		fmt.Fprintln(io.err, "mysh: unalias: missing argument")
		return 1
	}
	if _, ok := s.env.Alias(argv[1]); !ok {
		fmt.Fprintf(io.err, "mysh: unalias: not found: %s\n", argv[1])
		return 1
	}
	if io.inProcess {
		s.env.UnsetAlias(argv[1])
	}
	return 0
}

func builtinSet(s *Shell, io builtinIO, argv []string) int {
	switch {
	case len(argv) == 2 && strings.ContainsRune(argv[1], '='):
		name, value, _ := splitEntry(argv[1])
		if name == "" {
			fmt.Fprintln(io.err, "mysh: set: usage: set NAME VALUE")
			return 1
		}
		if io.inProcess {
			s.env.SetVar(name, value)
		}
		return 0
	case len(argv) >= 3:
		if io.inProcess {
			s.env.SetVar(argv[1], strings.Join(argv[2:], " "))
		}
		return 0
	default:
		fmt.Fprintln(io.err, "mysh: set: usage: set NAME VALUE")
		return 1
	}
}

func builtinUnset(s *Shell, io builtinIO, argv []string) int {
	if len(argv) < 2 {
		fmt.Fprintln(io.err, "mysh: unset: missing argument")
		return 1
	}
	if _, ok := s.env.Var(argv[1]); !ok {
		fmt.Fprintf(io.err, "mysh: unset: not found: %s\n", argv[1])
		return 1
	}
	if io.inProcess {
		s.env.UnsetVar(argv[1])
	}
	return 0
}

func builtinVars(s *Shell, io builtinIO, argv []string) int {
	for _, kv := range s.env.Vars() {
		fmt.Fprintf(io.out, "%s = %s\n", kv[0], kv[1])
	}
	return 0
}

func stateColor(state string) *color.Color {
	switch state {
	case "Running":
		return ColorBoldGreen
	case "Stopped":
		return ColorYellow
	default:
		return ColorBoldRed
	}
}

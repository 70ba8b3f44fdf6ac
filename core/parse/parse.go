// Package parse folds token streams into executable pipelines.
package parse

import (
	"strings"

	"josephlewis.net/mysh/core/token"
)

// Command is one stage of a pipeline: an argv plus optional redirections.
// A command holds at most one input and one output redirection; a later
// redirection silently replaces an earlier one.
type Command struct {
	Argv    []string
	Infile  string
	Outfile string
	Append  bool
}

// Empty reports whether the command has no arguments and no redirections.
func (c *Command) Empty() bool {
	return len(c.Argv) == 0 && c.Infile == "" && c.Outfile == ""
}

// String renders the command roughly as the user typed it.
func (c *Command) String() string {
	var parts []string
	parts = append(parts, c.Argv...)
	if c.Infile != "" {
		parts = append(parts, "<", c.Infile)
	}
	if c.Outfile != "" {
		if c.Append {
			parts = append(parts, ">>", c.Outfile)
		} else {
			parts = append(parts, ">", c.Outfile)
		}
	}
	return strings.Join(parts, " ")
}

// Pipeline is an ordered list of commands connected by pipes.
type Pipeline struct {
	Commands   []Command
	Background bool
}

// Empty reports whether the pipeline contains no runnable command.
func (p *Pipeline) Empty() bool {
	return len(p.Commands) == 0
}

// Parse folds a token list into a pipeline. It never fails: a redirection
// operator with no following word is ignored and empty commands between
// pipes are dropped, so malformed input yields a best-effort pipeline.
func Parse(toks []token.Token) Pipeline {
	var pl Pipeline
	var cur Command

	flush := func() {
		if !cur.Empty() {
			pl.Commands = append(pl.Commands, cur)
		}
		cur = Command{}
	}

	i := 0
	for i < len(toks) {
		t := toks[i]
		switch t.Kind {
		case token.Pipe:
			flush()
			i++
		case token.RedirIn:
			if i+1 < len(toks) {
				cur.Infile = toks[i+1].Text
				i += 2
			} else {
				i++
			}
		case token.RedirOut:
			if i+1 < len(toks) {
				cur.Outfile = toks[i+1].Text
				cur.Append = false
				i += 2
			} else {
				i++
			}
		case token.RedirAppend:
			if i+1 < len(toks) {
				cur.Outfile = toks[i+1].Text
				cur.Append = true
				i += 2
			} else {
				i++
			}
		case token.Background:
			pl.Background = true
			i++
		default:
			cur.Argv = append(cur.Argv, t.Text)
			i++
		}
	}
	flush()
	return pl
}

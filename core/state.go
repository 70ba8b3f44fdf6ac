package core

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Env holds the shell's alias and variable tables. Both tables are owned by
// the interactive loop; nothing else mutates them.
type Env struct {
	aliases map[string]string
	vars    map[string]string
}

// NewEnv returns empty tables.
func NewEnv() *Env {
	return &Env{
		aliases: make(map[string]string),
		vars:    make(map[string]string),
	}
}

// SetAlias inserts or replaces an alias.
func (e *Env) SetAlias(name, value string) {
	e.aliases[name] = value
}

// UnsetAlias removes an alias, reporting whether it existed.
func (e *Env) UnsetAlias(name string) bool {
	_, ok := e.aliases[name]
	delete(e.aliases, name)
	return ok
}

// Alias looks up an alias value.
func (e *Env) Alias(name string) (string, bool) {
	v, ok := e.aliases[name]
	return v, ok
}

// Aliases lists the alias table sorted by name.
func (e *Env) Aliases() [][2]string {
	return sorted(e.aliases)
}

// SetVar inserts or replaces a shell variable.
func (e *Env) SetVar(name, value string) {
	e.vars[name] = value
}

// UnsetVar removes a shell variable, reporting whether it existed.
func (e *Env) UnsetVar(name string) bool {
	_, ok := e.vars[name]
	delete(e.vars, name)
	return ok
}

// Var looks up a shell variable.
func (e *Env) Var(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// Vars lists the variable table sorted by name.
func (e *Env) Vars() [][2]string {
	return sorted(e.vars)
}

func sorted(m map[string]string) [][2]string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([][2]string, 0, len(names))
	for _, k := range names {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

// ExpandAliasLine applies alias expansion to the first word of a raw input
// line. Expansion is deliberately non-recursive so self-referencing aliases
// cannot loop.
func (e *Env) ExpandAliasLine(line string) string {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return line
	}

	first := trimmed
	rest := ""
	if idx := strings.IndexAny(trimmed, " \t"); idx >= 0 {
		first = trimmed[:idx]
		rest = strings.TrimLeft(trimmed[idx:], " \t")
	}

	value, ok := e.aliases[first]
	if !ok {
		return line
	}
	if rest == "" {
		return value
	}
	return value + " " + rest
}

// Save rewrites the state file whole: one "alias NAME=VALUE" line per alias
// followed by one "set NAME=VALUE" line per variable.
func (e *Env) Save(fs afero.Fs, path string) error {
	var sb strings.Builder
	for _, kv := range e.Aliases() {
		fmt.Fprintf(&sb, "alias %s=%s\n", kv[0], kv[1])
	}
	for _, kv := range e.Vars() {
		fmt.Fprintf(&sb, "set %s=%s\n", kv[0], kv[1])
	}
	return afero.WriteFile(fs, path, []byte(sb.String()), 0600)
}

// Load merges entries from the state file into the tables. Lines that are
// neither alias nor set entries are skipped. A missing file returns the open
// error and leaves the tables unchanged.
func (e *Env) Load(fs afero.Fs, path string) error {
	fd, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "alias "):
			if name, value, ok := splitEntry(line[len("alias "):]); ok {
				e.SetAlias(name, value)
			}
		case strings.HasPrefix(line, "set "):
			if name, value, ok := splitEntry(line[len("set "):]); ok {
				e.SetVar(name, value)
			}
		}
	}
	return scanner.Err()
}

// splitEntry splits NAME=VALUE at the first equals sign.
func splitEntry(s string) (name, value string, ok bool) {
	idx := strings.IndexByte(s, '=')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

// ExpandTilde replaces a leading ~ with the home directory.
func ExpandTilde(path, home string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	return home + path[1:]
}

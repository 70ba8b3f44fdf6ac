// Package history keeps the bounded ring of recent command lines.
package history

import (
	"bufio"
	"strings"

	"github.com/spf13/afero"
)

// DefaultLimit is the ring capacity when none is configured.
const DefaultLimit = 1000

// Ring is a bounded, append-only sequence of command lines. Consecutive
// duplicates are suppressed on insert.
type Ring struct {
	limit int
	lines []string
}

// NewRing returns a ring with the given capacity. Zero means DefaultLimit.
func NewRing(limit int) *Ring {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Ring{limit: limit}
}

// Push appends a line. Empty lines and lines equal to the most recent entry
// are dropped. When full, the oldest entry is evicted.
func (r *Ring) Push(line string) {
	if line == "" {
		return
	}
	if n := len(r.lines); n > 0 && r.lines[n-1] == line {
		return
	}
	r.lines = append(r.lines, line)
	if len(r.lines) > r.limit {
		r.lines = r.lines[len(r.lines)-r.limit:]
	}
}

// At returns the 1-based entry k, matching the numbering printed by the
// history builtin and consumed by !k expansion.
func (r *Ring) At(k int) (string, bool) {
	if k < 1 || k > len(r.lines) {
		return "", false
	}
	return r.lines[k-1], true
}

// Len reports the number of stored lines.
func (r *Ring) Len() int {
	return len(r.lines)
}

// Lines returns the entries oldest-first.
func (r *Ring) Lines() []string {
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Search returns the 1-based indices and text of entries containing term as
// a substring.
func (r *Ring) Search(term string) (idx []int, lines []string) {
	for i, l := range r.lines {
		if strings.Contains(l, term) {
			idx = append(idx, i+1)
			lines = append(lines, l)
		}
	}
	return idx, lines
}

// Load replaces the ring contents with the lines of the history file.
// A missing file returns the open error and leaves the ring unchanged.
func (r *Ring) Load(fs afero.Fs, path string) error {
	fd, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer fd.Close()

	r.lines = nil
	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		r.lines = append(r.lines, line)
		if len(r.lines) > r.limit {
			r.lines = r.lines[1:]
		}
	}
	return scanner.Err()
}

// Save rewrites the history file whole, newest entry last.
func (r *Ring) Save(fs afero.Fs, path string) error {
	var sb strings.Builder
	for _, l := range r.lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return afero.WriteFile(fs, path, []byte(sb.String()), 0600)
}

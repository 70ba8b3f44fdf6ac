package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONLinesRecorder(t *testing.T) {
	var buf bytes.Buffer
	session := NewJSONLinesRecorder(&buf).NewSession()

	session.SessionStart()
	session.Exec("echo hello | grep h", 0, false)
	session.Job(1, 4242, "Stopped")
	session.SessionEnd()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 4)

	var entries []Entry
	for _, line := range lines {
		var e Entry
		assert.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}

	assert.Equal(t, EventSessionStart, entries[0].Event)

	assert.Equal(t, EventExec, entries[1].Event)
	assert.Equal(t, "echo hello | grep h", entries[1].Cmdline)

	assert.Equal(t, EventJob, entries[2].Event)
	assert.Equal(t, 1, entries[2].JobID)
	assert.Equal(t, 4242, entries[2].Pgid)
	assert.Equal(t, "Stopped", entries[2].JobState)

	assert.Equal(t, EventSessionEnd, entries[3].Event)

	// All entries carry the same session ID and a timestamp.
	for _, e := range entries {
		assert.Equal(t, entries[0].SessionID, e.SessionID)
		assert.NotZero(t, e.TimestampMicros)
	}
}

func TestReadEntries(t *testing.T) {
	var buf bytes.Buffer
	session := NewJSONLinesRecorder(&buf).NewSession()
	session.Exec("ls", 0, false)
	session.Exec("sleep 5 &", 0, true)

	// Junk lines are skipped, not fatal.
	buf.WriteString("not json\n")

	entries, err := ReadEntries(&buf)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "ls", entries[0].Cmdline)
	assert.True(t, entries[1].Background)
}

func TestNopLogger(t *testing.T) {
	session := NewNopLogger().NewSession()
	session.SessionStart()
	session.Exec("ls", 0, false)
	session.SessionEnd()
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	s := &SessionLogger{Logger: l}
	s.Exec("ls", 0, false)
}

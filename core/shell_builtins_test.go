package core

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"josephlewis.net/mysh/core/job"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
	)
}

func TestIsBuiltin(t *testing.T) {
	for _, name := range []string{
		"cd", "exit", "mkdir", "touch", "clear", "help", "history",
		"histsearch", "jobs", "fg", "bg", "alias", "unalias", "set",
		"unset", "vars", "aliases",
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, isBuiltin(name))
		})
	}
	assert.False(t, isBuiltin("ls"))
	assert.False(t, isBuiltin(""))
}

func TestBuiltinCd(t *testing.T) {
	s, _, errOut := testShell(t)

	origWd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(origWd)

	dir := t.TempDir()
	status := s.runBuiltin([]string{"cd", dir}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, dir, resolveSymlinks(t, wd))

	t.Run("missing directory", func(t *testing.T) {
		status := s.runBuiltin([]string{"cd", filepath.Join(dir, "nope")}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
		assert.Equal(t, 1, status)
		assert.Contains(t, errOut.String(), "cd")
	})

	t.Run("tilde expansion", func(t *testing.T) {
		s.home = dir
		status := s.runBuiltin([]string{"cd", "~"}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
		assert.Equal(t, 0, status)
	})

	t.Run("redirected cd does not move the shell", func(t *testing.T) {
		require.NoError(t, os.Chdir(dir))
		other := t.TempDir()
		status := s.runBuiltin([]string{"cd", other}, builtinIO{out: s.stdout, err: s.stderr})
		assert.Equal(t, 0, status)

		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, dir, resolveSymlinks(t, wd))
	})
}

func resolveSymlinks(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func TestBuiltinExit(t *testing.T) {
	s, _, _ := testShell(t)
	s.home = "/home/u"

	status := s.runBuiltin([]string{"exit"}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	assert.True(t, s.exitPending)

	// Exit persists both state files.
	for _, path := range []string{"/home/u/.mysh_history", "/home/u/.mysh_history_config"} {
		exists, err := afero.Exists(s.stateFs, path)
		require.NoError(t, err)
		assert.True(t, exists, path)
	}
}

func TestBuiltinExitInPipelineDoesNotTerminate(t *testing.T) {
	s, _, _ := testShell(t)
	status := s.runBuiltin([]string{"exit"}, builtinIO{out: s.stdout, err: s.stderr})
	assert.Equal(t, 0, status)
	assert.False(t, s.exitPending)
}

func TestBuiltinMkdirTouch(t *testing.T) {
	s, _, errOut := testShell(t)
	dir := t.TempDir()

	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	status := s.runBuiltin([]string{"mkdir", a, b}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	for _, p := range []string{a, b} {
		fi, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}

	// Per-path errors are reported but don't stop the loop.
	c := filepath.Join(dir, "c")
	status = s.runBuiltin([]string{"mkdir", a, c}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	assert.Contains(t, errOut.String(), "mkdir")
	_, err := os.Stat(c)
	assert.NoError(t, err)

	f := filepath.Join(dir, "f.txt")
	status = s.runBuiltin([]string{"touch", f}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	fi, err := os.Stat(f)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fi.Mode().Perm())

	t.Run("missing operand", func(t *testing.T) {
		assert.Equal(t, 1, s.runBuiltin([]string{"mkdir"}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true}))
		assert.Equal(t, 1, s.runBuiltin([]string{"touch"}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true}))
	})
}

func TestBuiltinClear(t *testing.T) {
	s, out, _ := testShell(t)
	status := s.runBuiltin([]string{"clear"}, builtinIO{out: out, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	assert.Equal(t, "\x1b[H\x1b[2J", out.String())
}

func TestBuiltinHistory(t *testing.T) {
	s, out, _ := testShell(t)
	s.hist.Push("echo one")
	s.hist.Push("echo two")
	s.hist.Push("sleep 5 &")

	status := s.runBuiltin([]string{"history"}, builtinIO{out: out, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	golden(t).Assert(t, "history", out.Bytes())

	t.Run("limited", func(t *testing.T) {
		out := &bytes.Buffer{}
		status := s.runBuiltin([]string{"history", "-n", "1"}, builtinIO{out: out, err: s.stderr, inProcess: true})
		assert.Equal(t, 0, status)
		assert.Equal(t, "    3  sleep 5 &\n", out.String())
	})
}

func TestBuiltinHistsearch(t *testing.T) {
	s, out, _ := testShell(t)
	s.hist.Push("echo hello")
	s.hist.Push("ls -la")
	s.hist.Push("echo world")

	status := s.runBuiltin([]string{"histsearch", "echo"}, builtinIO{out: out, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	golden(t).Assert(t, "histsearch", out.Bytes())

	t.Run("usage", func(t *testing.T) {
		status := s.runBuiltin([]string{"histsearch"}, builtinIO{out: s.stdout, err: s.stderr, inProcess: true})
		assert.Equal(t, 1, status)
	})
}

func TestBuiltinAliasListAndSet(t *testing.T) {
	s, out, errOut := testShell(t)

	assert.Equal(t, 0, s.runBuiltin([]string{"alias", "hi=echo hey"}, builtinIO{out: out, err: errOut, inProcess: true}))
	assert.Equal(t, 0, s.runBuiltin([]string{"alias", "ll", "ls", "-l"}, builtinIO{out: out, err: errOut, inProcess: true}))

	v, ok := s.env.Alias("hi")
	assert.True(t, ok)
	assert.Equal(t, "echo hey", v)
	v, _ = s.env.Alias("ll")
	assert.Equal(t, "ls -l", v)

	out.Reset()
	assert.Equal(t, 0, s.runBuiltin([]string{"alias"}, builtinIO{out: out, err: errOut, inProcess: true}))
	golden(t).Assert(t, "alias-list", out.Bytes())

	out.Reset()
	assert.Equal(t, 0, s.runBuiltin([]string{"aliases"}, builtinIO{out: out, err: errOut, inProcess: true}))
	golden(t).Assert(t, "alias-list", out.Bytes())

	t.Run("usage", func(t *testing.T) {
		assert.Equal(t, 1, s.runBuiltin([]string{"alias", "solo"}, builtinIO{out: out, err: errOut, inProcess: true}))
	})
}

func TestBuiltinUnaliasUnset(t *testing.T) {
	s, out, errOut := testShell(t)
	s.env.SetAlias("hi", "echo hey")
	s.env.SetVar("X", "1")

	assert.Equal(t, 0, s.runBuiltin([]string{"unalias", "hi"}, builtinIO{out: out, err: errOut, inProcess: true}))
	assert.Equal(t, 1, s.runBuiltin([]string{"unalias", "hi"}, builtinIO{out: out, err: errOut, inProcess: true}))

	assert.Equal(t, 0, s.runBuiltin([]string{"unset", "X"}, builtinIO{out: out, err: errOut, inProcess: true}))
	assert.Equal(t, 1, s.runBuiltin([]string{"unset", "X"}, builtinIO{out: out, err: errOut, inProcess: true}))
}

func TestBuiltinJobs(t *testing.T) {
	s, out, _ := testShell(t)
	s.jobs.Add(1001, "sleep 100 &", job.Running)
	j := s.jobs.Add(1002, "vim notes.txt", job.Running)
	s.jobs.SetStateByID(j.ID, job.Stopped)

	status := s.runBuiltin([]string{"jobs"}, builtinIO{out: out, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)
	golden(t).Assert(t, "jobs", out.Bytes())
}

func TestBuiltinHelpListsEverything(t *testing.T) {
	s, out, _ := testShell(t)
	status := s.runBuiltin([]string{"help"}, builtinIO{out: out, err: s.stderr, inProcess: true})
	assert.Equal(t, 0, status)

	for name := range builtinRegistry {
		assert.Contains(t, out.String(), name)
	}
}

func TestBuiltinFgBgBadIDs(t *testing.T) {
	s, _, errOut := testShell(t)

	assert.Equal(t, 1, s.runBuiltin([]string{"fg"}, builtinIO{out: s.stdout, err: errOut, inProcess: true}))
	assert.Equal(t, 1, s.runBuiltin([]string{"fg", "x"}, builtinIO{out: s.stdout, err: errOut, inProcess: true}))
	assert.Equal(t, 1, s.runBuiltin([]string{"fg", "42"}, builtinIO{out: s.stdout, err: errOut, inProcess: true}))
	assert.Equal(t, 1, s.runBuiltin([]string{"bg", "42"}, builtinIO{out: s.stdout, err: errOut, inProcess: true}))
	assert.Contains(t, errOut.String(), "no such job")
}

func TestUnknownBuiltin(t *testing.T) {
	s, _, _ := testShell(t)
	assert.Equal(t, 127, s.runBuiltin([]string{"definitely-not-a-builtin"}, builtinIO{out: s.stdout, err: s.stderr}))
}

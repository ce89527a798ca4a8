package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/richinsley/semboot"
	"github.com/richinsley/semboot/internal/config"
)

// childModeEnv makes the test binary act as semdemo itself, so race can
// re-execute it as its join children.
const childModeEnv = "SEMDEMO_TEST_CHILD"

func TestMain(m *testing.M) {
	switch os.Getenv(childModeEnv) {
	case "run":
		os.Exit(run(os.Args[1], os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
	case "silent":
		os.Exit(4)
	}
	os.Exit(m.Run())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// setupKey points SEMBOOT_PATH at a fresh file and returns the key semdemo
// will derive from it. The set is removed when the test ends.
func setupKey(t *testing.T) semboot.Key {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semkey")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	t.Setenv("SEMBOOT_PATH", path)
	t.Setenv("SEMBOOT_PROJ", "D")
	t.Setenv("SEMBOOT_LOG_LEVEL", "error")
	t.Setenv(semboot.ReportFDEnv, "")

	key, err := semboot.KeyFromPath(path, 'D')
	require.NoError(t, err)

	set, err := semboot.AcquireOrJoin(key, 1)
	if err != nil {
		t.Skipf("System V semaphores unavailable: %v", err)
	}
	require.NoError(t, set.Remove())
	t.Cleanup(func() { semboot.Remove(key) })
	return key
}

// semdemo runs one subcommand in-process. race children share stderr, so
// both streams are guarded.
func semdemo(t *testing.T, name string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr syncBuffer
	code := run(name, args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInitStatRemove(t *testing.T) {
	var (
		assert = assert.New(t)
		key    = setupKey(t)
	)

	code, out, _ := semdemo(t, "init", "--nsems", "3")
	assert.Equal(0, code)
	assert.Contains(out, "created semaphore set")

	code, out, _ = semdemo(t, "init", "-n", "3")
	assert.Equal(0, code)
	assert.Contains(out, "joined semaphore set")

	code, out, _ = semdemo(t, "stat")
	assert.Equal(0, code)
	assert.Contains(out, "key:         "+key.String())
	assert.Contains(out, "semaphores:  3")

	code, out, _ = semdemo(t, "rm")
	assert.Equal(0, code)
	assert.Contains(out, "removed semaphore set")

	code, _, errOut := semdemo(t, "rm")
	assert.Equal(1, code)
	assert.Contains(errOut, "rm: ")
	assert.Contains(errOut, semboot.ErrNotFound.Error())

	code, _, errOut = semdemo(t, "stat")
	assert.Equal(1, code)
	assert.Contains(errOut, semboot.ErrNotFound.Error())
}

func TestUsageErrors(t *testing.T) {
	t.Setenv("SEMBOOT_PATH", t.TempDir())

	tests := []struct {
		name    string
		command string
		args    []string
		code    int
		stderr  string
	}{
		{"UnknownCommand", "frobnicate", nil, 2, "usage"},
		{"UnknownFlag", "init", []string{"--bogus"}, 2, "bogus"},
		{"LogLevel", "init", []string{"--log-level", "loud"}, 2, "loud"},
		{"Proj", "stat", []string{"--proj", "JK"}, 2, "JK"},
		{"MissingPath", "stat", []string{"--path", filepath.Join(t.TempDir(), "missing")}, 1, "key: "},
		{"Help", "init", []string{"--help"}, 0, "--path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := semdemo(t, tt.command, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, errOut, tt.stderr)
		})
	}
}

func TestJoinWithoutParent(t *testing.T) {
	setupKey(t)

	code, out, _ := semdemo(t, "join")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, fmt.Sprintf("pid %d: created", os.Getpid()))

	code, out, _ = semdemo(t, "join")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, fmt.Sprintf("pid %d: joined", os.Getpid()))
}

func TestRace(t *testing.T) {
	key := setupKey(t)
	t.Setenv(childModeEnv, "run")

	code, out, errOut := semdemo(t, "race", "--procs", "3", "--poll-interval", "10ms", "--max-attempts", "500")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 created, 2 joined, 0 failed")
	assert.Equal(t, 3, strings.Count(out, "pid "))

	info, err := semboot.Stat(key)
	require.NoError(t, err)
	assert.Equal(t, 1, info.NSems)
}

func TestRacePrintsReportsOnFailure(t *testing.T) {
	t.Setenv("SEMBOOT_PATH", t.TempDir())
	t.Setenv(childModeEnv, "silent")

	code, out, _ := semdemo(t, "race", "--procs", "2")
	assert.Equal(t, 1, code)
	assert.Equal(t, 2, strings.Count(out, ": error: "))
	assert.Contains(t, out, "0 created, 0 joined, 2 failed")
}

func TestJoinArgs(t *testing.T) {
	cfg := config.Default()
	cfg.Path = "/var/run"
	cfg.Proj = "Q"
	cfg.NSems = 4
	cfg.PollInterval = 250 * time.Millisecond
	cfg.LogLevel = "debug"

	args := (&command{cfg: cfg}).joinArgs()
	require.Equal(t, "join", args[0])
	require.Equal(t, 1, len(args[1:])%2)

	flags := make(map[string]string)
	for i := 1; i+1 < len(args); i += 2 {
		flags[args[i]] = args[i+1]
	}
	assert.Equal(t, map[string]string{
		"--path":          "/var/run",
		"--proj":          "Q",
		"--nsems":         "4",
		"--initial":       "1",
		"--poll-interval": "250ms",
		"--max-attempts":  "10",
		"--log-level":     "debug",
	}, flags)
}

func newLockCommand(t *testing.T, key semboot.Key, stdin io.Reader) (*command, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	return &command{
		cfg:     config.Default(),
		key:     key,
		logger:  zap.NewNop(),
		stdin:   stdin,
		stdout:  out,
		stderr:  io.Discard,
		signals: make(chan os.Signal, 1),
	}, out
}

func value(t *testing.T, key semboot.Key) int {
	t.Helper()
	set, err := semboot.AcquireOrJoin(key, 1)
	require.NoError(t, err)
	defer set.Close()
	v, err := set.Value(0)
	require.NoError(t, err)
	return v
}

func TestLock(t *testing.T) {
	key := setupKey(t)
	c, out := newLockCommand(t, key, strings.NewReader("\n\n"))

	require.NoError(t, c.lock())
	assert.Contains(t, out.String(), "Locked.")
	assert.Contains(t, out.String(), "Unlocked")
	assert.Equal(t, 1, value(t, key))
}

func TestLockInterruptedWhileWaiting(t *testing.T) {
	key := setupKey(t)

	holder, err := semboot.AcquireOrJoin(key, 1)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, holder.Acquire(0))

	c, out := newLockCommand(t, key, strings.NewReader("\n\n"))
	done := make(chan error, 1)
	go func() {
		done <- c.lock()
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Trying to lock...")
	}, 5*time.Second, 10*time.Millisecond)
	c.signals <- syscall.SIGINT

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "interrupted by interrupt while waiting for the lock")
	case <-time.After(2 * time.Second):
		t.Fatal("lock kept waiting after an interrupt")
	}
	assert.NotContains(t, out.String(), "Locked.")

	v, err := holder.Value(0)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestLockInterruptedWhileLocked(t *testing.T) {
	key := setupKey(t)

	stdin, input := io.Pipe()
	defer input.Close()
	go input.Write([]byte("\n"))

	c, out := newLockCommand(t, key, stdin)
	done := make(chan error, 1)
	go func() {
		done <- c.lock()
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Locked.")
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, value(t, key))
	c.signals <- syscall.SIGTERM

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "interrupted by terminated")
	case <-time.After(2 * time.Second):
		t.Fatal("lock did not return after an interrupt")
	}
	assert.Contains(t, out.String(), "Unlocked")
	assert.Equal(t, 1, value(t, key))
}

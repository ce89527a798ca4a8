// Command semdemo exercises a shared System V semaphore set from the shell.
//
//	semdemo init             create (or join) the set and exit
//	semdemo lock [--index i] lock and unlock one semaphore interactively
//	semdemo rm               remove the set
//	semdemo stat             show the set
//	semdemo race [--procs n] start n join processes at once and report who created the set
//	semdemo join             create or join, reporting to a race parent if there is one
//
// Every subcommand derives the key from --path and --proj, so running
// semdemo lock in two terminals contends for the same semaphore.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/richinsley/semboot"
	"github.com/richinsley/semboot/internal/config"
	"github.com/richinsley/semboot/internal/logging"
)

const usage = `usage: semdemo <init|lock|rm|stat|race|join> [flags]`

type command struct {
	cfg    *config.Config
	key    semboot.Key
	logger *zap.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// signals interrupts lock. When nil, lock subscribes to SIGINT and
	// SIGTERM itself.
	signals chan os.Signal

	index int
	procs int
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	os.Exit(run(os.Args[1], os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one subcommand and returns the exit code: 0 on success, 1
// when the command fails, 2 for usage and configuration errors.
func run(name string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	c := &command{cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr}
	fs := pflag.NewFlagSet("semdemo "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Path, "path", cfg.Path, "existing path the key is derived from")
	fs.StringVar(&cfg.Proj, "proj", cfg.Proj, "project id byte the key is derived from")
	fs.IntVarP(&cfg.NSems, "nsems", "n", cfg.NSems, "number of semaphores in the set")
	fs.IntVar(&cfg.InitialValue, "initial", cfg.InitialValue, "initial value of each semaphore")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "wait between initialization checks when joining")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "initialization checks before giving up")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.BoolVar(&cfg.LogDev, "log-dev", cfg.LogDev, "human readable logs")
	fs.IntVarP(&c.index, "index", "i", 0, "semaphore index (lock)")
	fs.IntVarP(&c.procs, "procs", "p", 2, "number of processes (race)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	c.logger, err = logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDev,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 2
	}
	defer c.logger.Sync()

	c.key, err = semboot.KeyFromPath(cfg.Path, cfg.ProjID())
	if err != nil {
		fmt.Fprintf(stderr, "key: %v\n", err)
		return 1
	}

	var runErr error
	switch name {
	case "init":
		runErr = c.initSet()
	case "lock":
		runErr = c.lock()
	case "rm":
		runErr = c.remove()
	case "stat":
		runErr = c.stat()
	case "race":
		runErr = c.race()
	case "join":
		runErr = c.join()
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if runErr != nil {
		fmt.Fprintf(stderr, "%s: %v\n", name, runErr)
		return 1
	}
	return 0
}

func (c *command) options() []semboot.Option {
	return []semboot.Option{
		semboot.WithLogger(c.logger),
		semboot.WithPollInterval(c.cfg.PollInterval),
		semboot.WithMaxAttempts(c.cfg.MaxAttempts),
		semboot.WithInitialValue(c.cfg.InitialValue),
	}
}

func (c *command) initSet() error {
	set, err := semboot.AcquireOrJoin(c.key, c.cfg.NSems, c.options()...)
	if err != nil {
		return err
	}
	defer set.Close()
	fmt.Fprintf(c.stdout, "%s semaphore set %d (key %s)\n", set.Outcome(), set.ID(), c.key)
	return nil
}

// lock waits for return before locking and again before unlocking. An
// interrupt while locked releases first. An interrupt while waiting for
// the lock returns at once; the process exits with the semop still
// pending and SEM_UNDO reverts it if it completed.
func (c *command) lock() error {
	set, err := semboot.AcquireOrJoin(c.key, c.cfg.NSems, c.options()...)
	if err != nil {
		return err
	}
	defer set.Close()

	lines := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(c.stdin)
		for sc.Scan() {
			lines <- struct{}{}
		}
		close(lines)
	}()
	sigChan := c.signals
	if sigChan == nil {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
	}

	wait := func() error {
		select {
		case _, ok := <-lines:
			if !ok {
				return errors.New("stdin closed")
			}
			return nil
		case sig := <-sigChan:
			return fmt.Errorf("interrupted by %v", sig)
		}
	}

	fmt.Fprint(c.stdout, "Press return to lock: ")
	if err := wait(); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Trying to lock...")

	// semop restarts after a signal, so it cannot block this goroutine.
	acquired := make(chan error, 1)
	go func() {
		acquired <- set.Acquire(c.index)
	}()
	select {
	case err := <-acquired:
		if err != nil {
			return err
		}
	case sig := <-sigChan:
		return fmt.Errorf("interrupted by %v while waiting for the lock", sig)
	}
	fmt.Fprintln(c.stdout, "Locked.")

	fmt.Fprint(c.stdout, "Press return to unlock: ")
	waitErr := wait()
	if err := set.Release(c.index); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Unlocked")
	return waitErr
}

func (c *command) remove() error {
	if err := semboot.Remove(c.key); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "removed semaphore set (key %s)\n", c.key)
	return nil
}

func (c *command) stat() error {
	info, err := semboot.Stat(c.key)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "key:         %s\n", info.Key)
	fmt.Fprintf(c.stdout, "semid:       %d\n", info.ID)
	fmt.Fprintf(c.stdout, "semaphores:  %d\n", info.NSems)
	fmt.Fprintf(c.stdout, "mode:        %#o\n", info.Mode)
	fmt.Fprintf(c.stdout, "last op:     %s\n", formatTime(info.LastOp))
	fmt.Fprintf(c.stdout, "last change: %s\n", formatTime(info.LastChange))
	return nil
}

func (c *command) race() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	reports, runErr := semboot.RunParticipants(semboot.ParticipantsConfig{
		Exe:    exe,
		Args:   c.joinArgs(),
		Count:  c.procs,
		Stderr: c.stderr,
	})
	failed := c.printReports(reports)
	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d participants failed", failed)
	}
	return nil
}

// joinArgs rebuilds the command line of a race child from the resolved
// configuration, so flags given to race reach every participant.
func (c *command) joinArgs() []string {
	return []string{"join",
		"--path", c.cfg.Path,
		"--proj", c.cfg.Proj,
		"--nsems", strconv.Itoa(c.cfg.NSems),
		"--initial", strconv.Itoa(c.cfg.InitialValue),
		"--poll-interval", c.cfg.PollInterval.String(),
		"--max-attempts", strconv.Itoa(c.cfg.MaxAttempts),
		"--log-level", c.cfg.LogLevel,
	}
}

// printReports writes one line per report and a summary, and returns the
// number of failed participants.
func (c *command) printReports(reports []semboot.Report) int {
	if len(reports) == 0 {
		return 0
	}
	var created, failed int
	for _, r := range reports {
		if r.Error != "" {
			failed++
			fmt.Fprintf(c.stdout, "pid %d: error: %s\n", r.PID, r.Error)
			continue
		}
		if r.Outcome == semboot.Created.String() {
			created++
		}
		fmt.Fprintf(c.stdout, "pid %d: %s after %s\n", r.PID, r.Outcome, r.Elapsed.Round(time.Millisecond))
	}
	fmt.Fprintf(c.stdout, "%d created, %d joined, %d failed\n", created, len(reports)-created-failed, failed)
	return failed
}

func (c *command) join() error {
	r := semboot.Participate(c.key, c.cfg.NSems, c.options()...)
	err := semboot.ReportToParent(r)
	if errors.Is(err, semboot.ErrNoParent) {
		fmt.Fprintf(c.stdout, "pid %d: %s\n", r.PID, r.Outcome)
	} else if err != nil {
		return err
	}
	if r.Error != "" {
		return errors.New(r.Error)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

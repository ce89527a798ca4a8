//go:build !windows

package semboot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ParticipantsConfig describes a batch of processes to race against each
// other. Each one is expected to call Participate and ReportToParent.
type ParticipantsConfig struct {
	// Exe is the program to run, typically os.Args[0] or os.Executable().
	Exe string

	// Args are passed to every participant.
	Args []string

	// Env is appended to the current environment for every participant.
	Env []string

	// Count is the number of participants to start.
	Count int

	// Stderr, if set, receives the participants' standard error.
	Stderr io.Writer
}

type participant struct {
	cmd    *exec.Cmd
	reader *os.File
}

// RunParticipants starts cfg.Count processes back to back so that they race
// on the same key, then collects one Report from each. Reports are in start
// order. A participant that exits without reporting, or exits non-zero
// after reporting success, gets its Error field filled in. The returned
// error covers only failures to start processes or read their pipes.
func RunParticipants(cfg ParticipantsConfig) ([]Report, error) {
	if cfg.Count < 1 {
		return nil, fmt.Errorf("%w: participant count %d", ErrInvalidArgument, cfg.Count)
	}

	procs := make([]participant, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		p, err := startParticipant(cfg)
		if err != nil {
			for _, started := range procs {
				started.cmd.Process.Kill()
				started.cmd.Wait()
				started.reader.Close()
			}
			return nil, fmt.Errorf("start participant %d: %w", i, err)
		}
		procs = append(procs, p)
	}

	var (
		wg      sync.WaitGroup
		reports = make([]Report, len(procs))
		errs    = make([]error, len(procs))
	)
	for i, p := range procs {
		wg.Add(1)
		go func(i int, p participant) {
			defer wg.Done()
			t := NewMsgpackTransport(p.reader, nil)
			defer t.Close()

			r, err := ReadReport(t, MsgpackSerializer{})
			if err != nil {
				errs[i] = fmt.Errorf("participant %d (pid %d): %w", i, p.cmd.Process.Pid, err)
				r = Report{PID: p.cmd.Process.Pid, Error: err.Error()}
			}
			if exitErr := waitForExit(p.cmd); exitErr != nil && r.Error == "" {
				r.Error = exitErr.Error()
			}
			reports[i] = r
		}(i, p)
	}
	wg.Wait()

	return reports, errors.Join(errs...)
}

func startParticipant(cfg ParticipantsConfig) (participant, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return participant{}, err
	}

	cmd := exec.Command(cfg.Exe, cfg.Args...)
	fds := setExtraFiles(cmd, []*os.File{w})
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Env = append(cmd.Env, ReportFDEnv+"="+fds[0])
	cmd.Stderr = cfg.Stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return participant{}, err
	}
	// The child holds its own copy; closing ours lets Receive see EOF if the
	// child dies without reporting.
	w.Close()
	return participant{cmd: cmd, reader: r}, nil
}

// waitForExit waits for a command to exit and returns an appropriate error.
func waitForExit(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
			return errors.New("participant process was killed")
		}
		return err
	}
	return nil
}

// setExtraFiles attaches extra files to the command and returns their FD numbers.
// On Unix, extra files start at FD 3 (after stdin=0, stdout=1, stderr=2).
func setExtraFiles(cmd *exec.Cmd, extraFiles []*os.File) []string {
	cmd.ExtraFiles = extraFiles
	retv := make([]string, len(extraFiles))
	for i := range extraFiles {
		retv[i] = fmt.Sprintf("%d", i+3)
	}
	return retv
}

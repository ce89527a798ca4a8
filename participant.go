package semboot

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ReportFDEnv names the environment variable that tells a participant which
// inherited file descriptor to send its Report on.
const ReportFDEnv = "SEMBOOT_REPORT_FD"

// ErrNoParent is returned by ReportToParent when the process was not started
// by RunParticipants.
var ErrNoParent = errors.New("semboot: no report pipe from a parent process")

// Report is what one participant process tells its parent about its call
// to AcquireOrJoin.
type Report struct {
	PID     int           `msgpack:"pid"`
	Key     Key           `msgpack:"key"`
	Outcome string        `msgpack:"outcome"`
	Error   string        `msgpack:"error,omitempty"`
	Elapsed time.Duration `msgpack:"elapsed"`
}

// Participate runs AcquireOrJoin and summarizes the result. The handle is
// closed before returning; the set itself stays in place.
func Participate(key Key, n int, opts ...Option) Report {
	r := Report{PID: os.Getpid(), Key: key}
	start := time.Now()
	set, err := AcquireOrJoin(key, n, opts...)
	r.Elapsed = time.Since(start)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Outcome = set.Outcome().String()
	set.Close()
	return r
}

// WriteReport encodes r with s and sends it as one message on t.
func WriteReport(t Transport, s Serializer, r Report) error {
	data, err := s.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return t.Send(data)
}

// ReadReport receives one message from t and decodes it with s.
func ReadReport(t Transport, s Serializer) (Report, error) {
	var r Report
	data, err := t.Receive()
	if err != nil {
		return r, fmt.Errorf("receive report: %w", err)
	}
	if err := s.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// ReportToParent sends r on the pipe inherited from RunParticipants and
// closes it.
func ReportToParent(r Report) error {
	fdStr := os.Getenv(ReportFDEnv)
	if fdStr == "" {
		return ErrNoParent
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return fmt.Errorf("%w: bad %s=%q", ErrNoParent, ReportFDEnv, fdStr)
	}
	f := os.NewFile(uintptr(fd), "report")
	if f == nil {
		return fmt.Errorf("%w: invalid descriptor %d", ErrNoParent, fd)
	}

	t := NewMsgpackTransport(nil, f)
	defer t.Close()
	return WriteReport(t, MsgpackSerializer{}, r)
}

package semboot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize caps a single frame. Reports are a few dozen bytes.
const maxMessageSize = 1 << 20

var (
	errNoWriter = errors.New("semboot: transport has no writer")
	errNoReader = errors.New("semboot: transport has no reader")
)

type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// MsgpackTransport frames messages as a 4-byte big-endian length followed by
// the payload. Either end may be nil for a one-way transport.
type MsgpackTransport struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func NewMsgpackTransport(reader io.ReadCloser, writer io.WriteCloser) *MsgpackTransport {
	return &MsgpackTransport{reader: reader, writer: writer}
}

// Send writes the length prefix and payload in one Write so that a frame
// of at most PIPE_BUF bytes reaches a pipe atomically.
func (mt *MsgpackTransport) Send(data []byte) error {
	if mt.writer == nil {
		return errNoWriter
	}
	if len(data) > maxMessageSize {
		return fmt.Errorf("semboot: message of %d bytes exceeds limit", len(data))
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	if _, err := mt.writer.Write(frame); err != nil {
		return err
	}
	if f, ok := mt.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (mt *MsgpackTransport) Receive() ([]byte, error) {
	if mt.reader == nil {
		return nil, errNoReader
	}

	var prefix [4]byte
	if _, err := io.ReadFull(mt.reader, prefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxMessageSize {
		return nil, fmt.Errorf("semboot: message of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(mt.reader, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (mt *MsgpackTransport) Close() error {
	var errs []error
	if mt.reader != nil {
		errs = append(errs, mt.reader.Close())
	}
	if mt.writer != nil {
		errs = append(errs, mt.writer.Close())
	}
	return errors.Join(errs...)
}

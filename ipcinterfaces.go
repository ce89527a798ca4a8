package semboot

// Serializer turns a Report (or any other value) into bytes and back.
// MsgpackSerializer is the only implementation; the interface keeps
// WriteReport and ReadReport independent of the encoding.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// Transport moves whole messages between a participant and its parent.
// Each Send is delivered as exactly one Receive on the other end.
type Transport interface {
	Send(data []byte) error
	Receive() ([]byte, error)

	// Close closes whichever ends of the pipe the transport owns.
	Close() error
}

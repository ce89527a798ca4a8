//go:build !unix

package semboot

import "fmt"

// Key identifies a System V IPC object.
type Key int32

// PrivateKey is IPC_PRIVATE.
const PrivateKey Key = 0

func (k Key) String() string {
	return fmt.Sprintf("0x%08x", uint32(k))
}

// KeyFromPath is not available on this platform.
func KeyFromPath(path string, proj byte) (Key, error) {
	return PrivateKey, ErrNotSupported
}

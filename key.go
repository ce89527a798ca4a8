//go:build unix

package semboot

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Key identifies a System V IPC object. Independent processes that derive
// the same Key address the same semaphore set.
type Key int32

// PrivateKey is IPC_PRIVATE. Sets created under it cannot be joined by
// another process, so AcquireOrJoin rejects it.
const PrivateKey Key = 0

// String formats the key the way ipcs(1) prints it.
func (k Key) String() string {
	return fmt.Sprintf("0x%08x", uint32(k))
}

// KeyFromPath derives a key from an existing path and a non-zero project id,
// using the same bit layout as ftok(3) so the result matches keys computed
// by C programs for the same path and id. The file contents are never read.
func KeyFromPath(path string, proj byte) (Key, error) {
	if proj == 0 {
		return PrivateKey, fmt.Errorf("%w: project id must be non-zero", ErrInvalidArgument)
	}

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return PrivateKey, fmt.Errorf("stat %s: %w", path, err)
	}

	k := uint32(uint64(st.Ino)&0xffff) |
		uint32(uint64(st.Dev)&0xff)<<16 |
		uint32(proj)<<24
	return Key(int32(k)), nil
}

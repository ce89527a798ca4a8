package semboot

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// requireSysV skips the test when the kernel (or a sandbox) does not give
// us System V semaphores.
func requireSysV(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64") {
		t.Skipf("no System V semaphore shim for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	id, err := semget(PrivateKey, 1, ipcCreate|0o600)
	if err != nil {
		t.Skipf("System V semaphores unavailable: %v", err)
	}
	semRemoveID(id)
}

// newTestKey derives a key from a fresh file and removes any set under it
// now and when the test ends.
func newTestKey(t *testing.T) Key {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semkey")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	key, err := KeyFromPath(path, 'T')
	require.NoError(t, err)

	Remove(key)
	t.Cleanup(func() { Remove(key) })
	return key
}

// createStalled creates a set for n semaphores the way a creator that
// crashed before raising the ready semaphore would leave it.
func createStalled(t *testing.T, key Key, n int) int {
	t.Helper()
	id, err := semget(key, n+1, ipcCreate|ipcExclusive|0o600)
	require.NoError(t, err)
	return id
}

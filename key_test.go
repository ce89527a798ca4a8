//go:build unix

package semboot

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestKeyFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "semdemo")
	require.NoError(t, os.WriteFile(path, []byte("contents are never read"), 0o600))

	t.Run("Stable", func(t *testing.T) {
		k1, err := KeyFromPath(path, 'J')
		require.NoError(t, err)
		k2, err := KeyFromPath(path, 'J')
		require.NoError(t, err)
		assert.Equal(t, k1, k2)
	})

	t.Run("Layout", func(t *testing.T) {
		var st unix.Stat_t
		require.NoError(t, unix.Stat(path, &st))

		k, err := KeyFromPath(path, 'J')
		require.NoError(t, err)
		assert.Equal(t, uint32('J'), uint32(k)>>24)
		assert.Equal(t, uint32(uint64(st.Dev)&0xff), (uint32(k)>>16)&0xff)
		assert.Equal(t, uint32(uint64(st.Ino)&0xffff), uint32(k)&0xffff)
	})

	t.Run("ProjectDiscriminates", func(t *testing.T) {
		k1, err := KeyFromPath(path, 'J')
		require.NoError(t, err)
		k2, err := KeyFromPath(path, 'K')
		require.NoError(t, err)
		assert.NotEqual(t, k1, k2)
	})

	t.Run("ZeroProject", func(t *testing.T) {
		_, err := KeyFromPath(path, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("MissingPath", func(t *testing.T) {
		_, err := KeyFromPath(filepath.Join(dir, "missing"), 'J')
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "0x4a01beef", Key(0x4a01beef).String())
	assert.Equal(t, "0xffffffff", Key(-1).String())
}

//go:build linux && arm64

package semboot

import "golang.org/x/sys/unix"

// semidDS mirrors struct semid64_ds from include/uapi/asm-generic/sembuf.h.
type semidDS struct {
	Perm  unix.SysvIpcPerm
	Otime int64
	Ctime int64
	Nsems uint64
	_     uint64
	_     uint64
}

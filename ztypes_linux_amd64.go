//go:build linux && amd64

package semboot

import "golang.org/x/sys/unix"

// semidDS mirrors struct semid64_ds from arch/x86/include/uapi/asm/sembuf.h.
type semidDS struct {
	Perm  unix.SysvIpcPerm
	Otime int64
	_     uint64
	Ctime int64
	_     uint64
	Nsems uint64
	_     uint64
	_     uint64
}

//go:build linux && (amd64 || arm64)

package semboot

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// semctl commands and semop flags that x/sys/unix does not export.
// Source: include/uapi/linux/sem.h
const (
	semGETVAL = 12
	semGETALL = 13
	semSETVAL = 16
	semSETALL = 17

	semUNDO = 0x1000
)

// sembuf mirrors struct sembuf. It is 6 bytes with no padding so that a
// slice of them has the kernel's array layout.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// semStat is the subset of struct semid64_ds the package reads.
type semStat struct {
	key   int32
	mode  uint32
	nsems int
	otime int64
	ctime int64
}

func semget(key Key, nsems, flags int) (int, error) {
	id, _, e := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flags))
	if e != 0 {
		return -1, e
	}
	return int(id), nil
}

// semctl passes arg straight through as the union semun word, which holds
// the value for SETVAL and is ignored by GETVAL and IPC_RMID.
func semctl(id, num, cmd int, arg uintptr) (int, error) {
	r, _, e := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), uintptr(num), uintptr(cmd), arg, 0, 0)
	if e != 0 {
		return -1, e
	}
	return int(r), nil
}

// semctlPtr is semctl for the commands whose semun word is a pointer
// (SETALL, GETALL, IPC_STAT).
func semctlPtr(id, num, cmd int, p unsafe.Pointer) (int, error) {
	r, _, e := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), uintptr(num), uintptr(cmd), uintptr(p), 0, 0)
	if e != 0 {
		return -1, e
	}
	return int(r), nil
}

// semop applies sops atomically. The kernel never restarts semop after a
// signal handler runs, and the Go runtime delivers preemption signals, so
// EINTR is retried here.
func semop(id int, sops []sembuf) error {
	if len(sops) == 0 {
		return nil
	}
	for {
		_, _, e := unix.Syscall(unix.SYS_SEMOP, uintptr(id), uintptr(unsafe.Pointer(&sops[0])), uintptr(len(sops)))
		if e == unix.EINTR {
			continue
		}
		if e != 0 {
			return e
		}
		return nil
	}
}

// semtimedop is semop with a relative timeout. EAGAIN means the timeout
// elapsed. On EINTR the remaining time is recomputed.
func semtimedop(id int, sops []sembuf, timeout time.Duration) error {
	if len(sops) == 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ts := unix.NsecToTimespec(remaining.Nanoseconds())
		_, _, e := unix.Syscall6(unix.SYS_SEMTIMEDOP, uintptr(id), uintptr(unsafe.Pointer(&sops[0])),
			uintptr(len(sops)), uintptr(unsafe.Pointer(&ts)), 0, 0)
		if e == unix.EINTR {
			continue
		}
		if e != 0 {
			return e
		}
		return nil
	}
}

func semGetVal(id, num int) (int, error) {
	return semctl(id, num, semGETVAL, 0)
}

func semSetVal(id, num, val int) error {
	_, err := semctl(id, num, semSETVAL, uintptr(val))
	return err
}

// semSetAll sets every semaphore in the set. len(vals) must equal the set size.
func semSetAll(id int, vals []uint16) error {
	_, err := semctlPtr(id, 0, semSETALL, unsafe.Pointer(&vals[0]))
	return err
}

func semGetAll(id, nsems int) ([]uint16, error) {
	vals := make([]uint16, nsems)
	if _, err := semctlPtr(id, 0, semGETALL, unsafe.Pointer(&vals[0])); err != nil {
		return nil, err
	}
	return vals, nil
}

func semStatID(id int) (semStat, error) {
	var ds semidDS
	if _, err := semctlPtr(id, 0, unix.IPC_STAT, unsafe.Pointer(&ds)); err != nil {
		return semStat{}, err
	}
	return semStat{
		key:   ds.Perm.Key,
		mode:  ds.Perm.Mode,
		nsems: int(ds.Nsems),
		otime: ds.Otime,
		ctime: ds.Ctime,
	}, nil
}

func semRemoveID(id int) error {
	_, err := semctl(id, 0, unix.IPC_RMID, 0)
	return err
}

const (
	ipcCreate    = unix.IPC_CREAT
	ipcExclusive = unix.IPC_EXCL
	ipcNoWait    = unix.IPC_NOWAIT
)

// isExist reports the exclusive-create collision that sends a caller down
// the join path.
func isExist(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

// isGone reports a set that does not exist or was removed underneath us.
// semget returns ENOENT; semctl and semop on a stale id return EINVAL or EIDRM.
func isGone(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EIDRM)
}

// isAgain reports a non-blocking or timed operation that could not proceed.
func isAgain(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}

func isPermission(err error) bool {
	return errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM)
}

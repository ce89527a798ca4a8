//go:build !(linux && (amd64 || arm64))

package semboot

import "time"

// The System V shim is only wired for 64-bit Linux. Everything here
// reports ErrNotSupported so the package still builds elsewhere.

const (
	semUNDO = 0x1000

	ipcCreate    = 0x200
	ipcExclusive = 0x400
	ipcNoWait    = 0x800
)

type sembuf struct {
	num uint16
	op  int16
	flg int16
}

type semStat struct {
	key   int32
	mode  uint32
	nsems int
	otime int64
	ctime int64
}

func semget(key Key, nsems, flags int) (int, error) {
	return -1, ErrNotSupported
}

func semop(id int, sops []sembuf) error {
	return ErrNotSupported
}

func semtimedop(id int, sops []sembuf, timeout time.Duration) error {
	return ErrNotSupported
}

func semGetVal(id, num int) (int, error) {
	return 0, ErrNotSupported
}

func semSetVal(id, num, val int) error {
	return ErrNotSupported
}

func semSetAll(id int, vals []uint16) error {
	return ErrNotSupported
}

func semGetAll(id, nsems int) ([]uint16, error) {
	return nil, ErrNotSupported
}

func semStatID(id int) (semStat, error) {
	return semStat{}, ErrNotSupported
}

func semRemoveID(id int) error {
	return ErrNotSupported
}

func isExist(err error) bool      { return false }
func isGone(err error) bool       { return false }
func isAgain(err error) bool      { return false }
func isPermission(err error) bool { return false }

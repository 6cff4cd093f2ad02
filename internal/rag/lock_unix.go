//go:build !windows

package rag

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock holds an advisory flock(2) lock on a sentinel file.
type fileLock struct {
	f *os.File
}

// lockShared acquires a shared (reader) lock on path, blocking until
// available.
func lockShared(path string) (*fileLock, error) {
	return lockFile(path, unix.LOCK_SH)
}

// lockExclusive acquires an exclusive (writer) lock on path, blocking
// until available.
func lockExclusive(path string) (*fileLock, error) {
	return lockFile(path, unix.LOCK_EX)
}

func lockFile(path string, how int) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Unlock() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

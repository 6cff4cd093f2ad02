//go:build windows

package rag

import "os"

// fileLock is a stand-in on Windows: golang.org/x/sys/windows' LockFileEx
// requires overlapped I/O plumbing this repo does not otherwise need. It
// only opens the sentinel file and takes no lock, so readers and writers
// of an index are not excluded from one another on Windows.
type fileLock struct {
	f *os.File
}

func lockShared(path string) (*fileLock, error)    { return lockFile(path) }
func lockExclusive(path string) (*fileLock, error) { return lockFile(path) }

func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Unlock() error {
	return l.f.Close()
}

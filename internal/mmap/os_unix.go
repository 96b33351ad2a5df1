//go:build unix

package mmap

import (
	"errors"

	"golang.org/x/sys/unix"
)

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func osAdvise(data []byte, advice Advice) error {
	flag := unix.MADV_NORMAL
	switch advice {
	case AdviseWillNeed:
		flag = unix.MADV_WILLNEED
	case AdviseFree:
		flag = unix.MADV_DONTNEED
	}

	// Unaligned ranges are rejected with EINVAL; advice is only a hint.
	if err := unix.Madvise(data, flag); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}
	return nil
}

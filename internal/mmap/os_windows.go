//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMapAnon(size int) ([]byte, func([]byte) error, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size) //nolint:gosec // the region is owned by the returned slice
	return data, func([]byte) error {
		return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
	}, nil
}

func osAdvise(data []byte, advice Advice) error {
	if advice != AdviseFree {
		return nil
	}
	// MEM_RESET keeps the pages committed but lets the system discard them.
	// Unlike MADV_DONTNEED the contents are undefined afterwards, so clear
	// them to keep the zero-fill guarantee.
	addr := uintptr(unsafe.Pointer(&data[0])) //nolint:gosec // address of mapped memory
	if _, err := windows.VirtualAlloc(addr, uintptr(len(data)), windows.MEM_RESET, windows.PAGE_READWRITE); err != nil {
		return err
	}
	clear(data)
	return nil
}

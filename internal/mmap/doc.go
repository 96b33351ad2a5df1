// Package mmap maps the chunk memory arenas are carved from.
//
// Mappings live outside the Go heap, so the garbage collector neither scans
// nor moves them. A Mapping is zero-filled when created. Ranges advised with
// AdviseFree stay mapped but the kernel may reclaim their pages; they read
// back as zero.
//
// On Unix the memory comes from mmap(2) and advice goes to madvise(2). On
// Windows VirtualAlloc is used and only AdviseFree has an effect.
package mmap

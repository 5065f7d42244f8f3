// Package memexec changes page protections underneath byte buffers and
// turns their contents into callable routines. Linux only.
package memexec

import (
	"unsafe"

	"github.com/go-errors/errors"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
	"golang.org/x/sys/unix"
)

// Page returns the whole memory page containing p.
func Page(p unsafe.Pointer) []byte {
	base := uintptr(p) &^ uintptr(ds.PageSize-1)
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), ds.PageSize)
}

func protOf(flags ds.PageFlags) int {
	prot := 0
	if flags&ds.R != 0 {
		prot |= unix.PROT_READ
	}
	if flags&ds.W != 0 {
		prot |= unix.PROT_WRITE
	}
	if flags&ds.X != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// Protect applies flags to every page overlapped by buf. mprotect
// wants a page-aligned range, so the request is widened to the span of
// containing pages first.
func Protect(buf []byte, flags ds.PageFlags) *errors.Error {
	if len(buf) == 0 {
		return errors.Errorf("empty buffer")
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	span := ds.PageSpan(ds.NewRange(uint64(addr), uint64(addr)+uint64(len(buf))))
	region := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(span.From))), span.Length())
	if err := unix.Mprotect(region, protOf(flags)); err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// funcval is the runtime representation of a Go func value. A func is
// a pointer to one of these; the code word is the entry address.
type funcval struct {
	code unsafe.Pointer
}

// Func reinterprets the bytes at p as the entry of a zero-argument
// routine. This is the one unchecked data-to-code conversion in the
// repo; whether the resulting call ever returns is up to the
// instructions at p.
func Func(p unsafe.Pointer) func() {
	fv := &funcval{code: p}
	return *(*func())(unsafe.Pointer(&fv))
}

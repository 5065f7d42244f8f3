package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"reflect"
	"unsafe"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/pagejump/arch"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
	"github.com/ranmrdrakono/pagejump/disassemble"
	"github.com/ranmrdrakono/pagejump/emulator"
	"github.com/ranmrdrakono/pagejump/memexec"
	log "github.com/sirupsen/logrus"
)

// The instruction buffer. It lives in the binary's read-only data
// until run remaps its page; the reference payload is
// xor rdi, rdi; mov eax, 60; syscall — an exit(0) on x86-64 Linux.
var instructions = "\x48\x31\xff\xb8\x3c\x00\x00\x00\x0f\x05"

const preflight_base = uint64(0x1000)

// preflight disassembles and dry-runs the payload before the native
// jump. Diagnostics only, on stderr; a broken payload is logged but
// still jumped into, the native call stays unconditional.
func preflight(code string) {
	buf := []byte(code)
	lines, err := disassemble.Listing(preflight_base, buf)
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Warning("Failed to disassemble payload")
		return
	}
	for _, line := range lines {
		log.WithFields(log.Fields{"instr": line}).Info("Payload Instruction")
	}

	ev := emulator.NewEventsToMinHash()
	config := emulator.Config{
		MaxTraceInstructionCount: 1000,
		Arch:                     &arch.ArchX86_64{},
		EventHandler:             ev,
	}
	em, eerr := emulator.NewEmulator(map[uint64][]byte{preflight_base: buf}, config)
	if eerr != nil {
		log.WithFields(log.Fields{"error": eerr}).Warning("Failed to create emulator")
		return
	}
	defer em.Close()
	if rerr := em.Run(preflight_base); rerr != nil {
		log.WithFields(log.Fields{"error": rerr}).Warning("Failed to emulate payload")
		return
	}
	if status, exited := em.Exited(); exited {
		log.WithFields(log.Fields{
			"status": status,
			"hash":   hex.EncodeToString(ev.GetHash(16)),
		}).Info("Payload terminates the process by itself")
	} else {
		log.WithFields(log.Fields{"events": ev.Inspect()}).Info("Payload may return to the caller")
	}
}

type protectFunc func(buf []byte, flags ds.PageFlags) *errors.Error

type jumpFunc func(p unsafe.Pointer)

func jump(p unsafe.Pointer) {
	memexec.Func(p)()
}

func run(out io.Writer, code string, protect protectFunc, jmp jumpFunc) error {
	fmt.Fprintf(out, "main @ %p\n", unsafe.Pointer(reflect.ValueOf(main).Pointer()))

	p := unsafe.Pointer(unsafe.StringData(code))
	fmt.Fprintf(out, "instructions @ %p\n", p)

	page := memexec.Page(p)
	fmt.Fprintf(out, "Page start: %p\n", unsafe.Pointer(unsafe.SliceData(page)))

	preflight(code)

	fmt.Fprintln(out, "making instructions executable...")
	buf := unsafe.Slice((*byte)(p), len(code))
	if err := protect(buf, ds.R|ds.X); err != nil {
		fmt.Fprintf(out, "mprotect failed: error %s\n", err)
		return err
	}

	fmt.Fprintln(out, "jumping...")
	jmp(p)
	fmt.Fprintln(out, "after jump")
	return nil
}

func main() {
	log.SetLevel(log.ErrorLevel)
	if err := run(os.Stdout, instructions, memexec.Protect, jump); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"bytes"
	"strings"
	"testing"
	"unsafe"

	"github.com/go-errors/errors"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
)

func assertLinesInOrder(t *testing.T, out string, lines []string) {
	t.Helper()
	pos := 0
	for _, line := range lines {
		idx := strings.Index(out[pos:], line)
		if idx < 0 {
			t.Fatalf("missing or out of order: %q\noutput:\n%s", line, out)
		}
		pos += idx + len(line)
	}
}

func TestRunTraceLines(t *testing.T) {
	var out bytes.Buffer
	jumps := 0
	protect := func(buf []byte, flags ds.PageFlags) *errors.Error {
		if flags != ds.R|ds.X {
			t.Errorf("protect flags %v, expected r-x", flags)
		}
		if len(buf) != len(instructions) {
			t.Errorf("protect over %d bytes, expected %d", len(buf), len(instructions))
		}
		return nil
	}
	jmp := func(p unsafe.Pointer) { jumps++ }

	if err := run(&out, instructions, protect, jmp); err != nil {
		t.Fatalf("run: %v", err)
	}
	if jumps != 1 {
		t.Errorf("buffer invoked %d times, expected exactly once", jumps)
	}
	assertLinesInOrder(t, out.String(), []string{
		"main @ ",
		"instructions @ ",
		"Page start: ",
		"making instructions executable...",
		"jumping...",
		"after jump",
	})
}

func TestProtectDeniedNeverJumps(t *testing.T) {
	var out bytes.Buffer
	jumps := 0
	protect := func(buf []byte, flags ds.PageFlags) *errors.Error {
		return errors.Errorf("permission denied")
	}
	jmp := func(p unsafe.Pointer) { jumps++ }

	err := run(&out, instructions, protect, jmp)
	if err == nil {
		t.Fatal("run succeeded with denied protection change")
	}
	if jumps != 0 {
		t.Errorf("buffer invoked %d times after denied protection change", jumps)
	}
	got := out.String()
	if !strings.Contains(got, "mprotect failed: error permission denied") {
		t.Errorf("denial description missing from output:\n%s", got)
	}
	if strings.Contains(got, "jumping...") {
		t.Errorf("jumping... printed on the failure path:\n%s", got)
	}
}

func TestJumpTargetsBufferStart(t *testing.T) {
	var out bytes.Buffer
	var target unsafe.Pointer
	protect := func(buf []byte, flags ds.PageFlags) *errors.Error { return nil }
	jmp := func(p unsafe.Pointer) { target = p }

	if err := run(&out, instructions, protect, jmp); err != nil {
		t.Fatal(err)
	}
	if target != unsafe.Pointer(unsafe.StringData(instructions)) {
		t.Error("jump target is not the instruction buffer")
	}
}

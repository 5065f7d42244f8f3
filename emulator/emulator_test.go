package emulator

import (
	"bytes"
	"testing"

	"github.com/ranmrdrakono/pagejump/arch"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
)

// xor rdi, rdi; mov eax, 60; syscall
var exit_payload = []byte{0x48, 0x31, 0xff, 0xb8, 0x3c, 0x00, 0x00, 0x00, 0x0f, 0x05}

func makeEmulator(t *testing.T, code []byte) (*Emulator, *EventsToMinHash) {
	t.Helper()
	ev := NewEventsToMinHash()
	config := Config{
		MaxTraceInstructionCount: 1000,
		MaxTraceTime:             0,
		Arch:                     &arch.ArchX86_64{},
		EventHandler:             ev,
	}
	mem := make(map[uint64][]byte)
	mem[0x1000] = code
	em, err := NewEmulator(mem, config)
	if err != nil {
		t.Fatalf("NewEmulator: %v", err)
	}
	return em, ev
}

func TestExitPayloadReportsExitZero(t *testing.T) {
	em, ev := makeEmulator(t, exit_payload)
	defer em.Close()

	if err := em.Run(0x1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	status, exited := em.Exited()
	if !exited {
		t.Fatalf("payload did not exit, events: %s", ev.Inspect())
	}
	if status != 0 {
		t.Errorf("exit status %d, expected 0", status)
	}

	want := SyscallEvent{Num: arch.SyscallExit, Arg: 0}
	if _, ok := ev.Events[want.Hash()]; !ok {
		t.Errorf("exit syscall event missing, events: %s", ev.Inspect())
	}
}

func TestExitStatusIsTakenFromFirstArg(t *testing.T) {
	// mov rdi, 5; mov eax, 60; syscall
	code := []byte{
		0x48, 0xc7, 0xc7, 0x05, 0x00, 0x00, 0x00,
		0xb8, 0x3c, 0x00, 0x00, 0x00,
		0x0f, 0x05,
	}
	em, _ := makeEmulator(t, code)
	defer em.Close()

	if err := em.Run(0x1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	status, exited := em.Exited()
	if !exited || status != 5 {
		t.Errorf("got (%d, %v), expected (5, true)", status, exited)
	}
}

func TestWriteOutsideStackIsReported(t *testing.T) {
	// mov [0x4000], rax; mov eax, 60; syscall
	code := []byte{
		0x48, 0x89, 0x04, 0x25, 0x00, 0x40, 0x00, 0x00,
		0xb8, 0x3c, 0x00, 0x00, 0x00,
		0x0f, 0x05,
	}
	em, ev := makeEmulator(t, code)
	defer em.Close()

	if err := em.Run(0x1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := WriteEvent{Addr: 0x4000, Value: 0}
	if _, ok := ev.Events[want.Hash()]; !ok {
		t.Errorf("write event missing, events: %s", ev.Inspect())
	}
}

func TestEventHashIsStable(t *testing.T) {
	hashes := make([][]byte, 2)
	for i := range hashes {
		em, ev := makeEmulator(t, exit_payload)
		if err := em.Run(0x1000); err != nil {
			t.Fatalf("Run: %v", err)
		}
		hashes[i] = ev.GetHash(32)
		em.Close()
	}
	if len(hashes[0]) != 32 {
		t.Fatalf("hash length %d", len(hashes[0]))
	}
	if !bytes.Equal(hashes[0], hashes[1]) {
		t.Errorf("identical runs hashed differently: %x vs %x", hashes[0], hashes[1])
	}
}

func TestRejectsUnalignedCodepage(t *testing.T) {
	config := Config{
		MaxTraceInstructionCount: 10,
		Arch:                     &arch.ArchX86_64{},
		EventHandler:             NewEventsToMinHash(),
	}
	mem := map[uint64][]byte{0x1001: exit_payload}
	if _, err := NewEmulator(mem, config); err == nil {
		t.Error("unaligned codepage accepted")
	}
	if !ds.IsPageAligned(0x1000) {
		t.Error("sanity: 0x1000 should be aligned")
	}
}

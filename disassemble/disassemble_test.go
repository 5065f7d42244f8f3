package disassemble

import (
	"strings"
	"testing"

	ds "github.com/ranmrdrakono/pagejump/data_structures"
)

// xor rdi, rdi; mov eax, 60; syscall
var exit_payload = []byte{0x48, 0x31, 0xff, 0xb8, 0x3c, 0x00, 0x00, 0x00, 0x0f, 0x05}

func TestListingOfExitPayload(t *testing.T) {
	lines, err := Listing(0x1000, exit_payload)
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	expected := []string{"xor", "mov", "syscall"}
	if len(lines) != len(expected) {
		t.Fatalf("expected %d instructions, got %v", len(expected), lines)
	}
	for i, mnemonic := range expected {
		if !strings.Contains(lines[i], mnemonic) {
			t.Errorf("line %d = %q, expected mnemonic %q", i, lines[i], mnemonic)
		}
	}
	if !strings.HasPrefix(lines[0], "0x1000:") {
		t.Errorf("listing should start at base address, got %q", lines[0])
	}
}

func TestGetBBsSingleBlock(t *testing.T) {
	base := uint64(0x1000)
	rng := ds.NewRange(base, base+uint64(len(exit_payload)))
	bbs := GetBBs(base, exit_payload, rng)
	if len(bbs) != 1 {
		t.Fatalf("expected one block, got %v", bbs)
	}
	bb, ok := bbs[base]
	if !ok {
		t.Fatalf("no block at base, got %v", bbs)
	}
	if bb.Rng.From != base || bb.Rng.To != base+uint64(len(exit_payload)) {
		t.Errorf("block range %v", bb.Rng)
	}
}

func TestGetBBsSplitsAtJumps(t *testing.T) {
	// jne +2; nop; nop; ret
	code := []byte{0x75, 0x02, 0x90, 0x90, 0xc3}
	base := uint64(0x2000)
	rng := ds.NewRange(base, base+uint64(len(code)))
	bbs := GetBBs(base, code, rng)

	if len(bbs) < 2 {
		t.Fatalf("jump should split blocks, got %v", bbs)
	}
	first, ok := bbs[base]
	if !ok {
		t.Fatalf("no block at entry, got %v", bbs)
	}
	if first.Rng.To != base+2 {
		t.Errorf("first block should end after jne, got %v", first.Rng)
	}
	if len(first.Transfers) != 1 || first.Transfers[0] != base+4 {
		t.Errorf("jne transfer targets %v, expected [%#x]", first.Transfers, base+4)
	}
	if _, ok := bbs[base+2]; !ok {
		t.Errorf("fallthrough block missing, got %v", bbs)
	}
}

package disassemble

import (
	"fmt"

	"github.com/bnagy/gapstone"
	"github.com/go-errors/errors"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
	log "github.com/sirupsen/logrus"
)

/* set of jmp/call instructions ending a basic block */
var jmp_flags = make(map[uint]bool)

func init() {
	jmp_flags[gapstone.X86_INS_JL] = true
	jmp_flags[gapstone.X86_INS_JLE] = true
	jmp_flags[gapstone.X86_INS_JA] = true
	jmp_flags[gapstone.X86_INS_JAE] = true
	jmp_flags[gapstone.X86_INS_JB] = true
	jmp_flags[gapstone.X86_INS_JBE] = true
	jmp_flags[gapstone.X86_INS_JCXZ] = true
	jmp_flags[gapstone.X86_INS_JECXZ] = true
	jmp_flags[gapstone.X86_INS_JO] = true
	jmp_flags[gapstone.X86_INS_JNO] = true
	jmp_flags[gapstone.X86_INS_JS] = true
	jmp_flags[gapstone.X86_INS_JNS] = true
	jmp_flags[gapstone.X86_INS_JP] = true
	jmp_flags[gapstone.X86_INS_JNP] = true
	jmp_flags[gapstone.X86_INS_JE] = true
	jmp_flags[gapstone.X86_INS_JNE] = true
	jmp_flags[gapstone.X86_INS_JG] = true
	jmp_flags[gapstone.X86_INS_JGE] = true
	jmp_flags[gapstone.X86_INS_CALL] = true
	jmp_flags[gapstone.X86_INS_LCALL] = true
	jmp_flags[gapstone.X86_INS_JMP] = true
	jmp_flags[gapstone.X86_INS_LJMP] = true
}

func newEngine() (gapstone.Engine, *errors.Error) {
	engine, err := gapstone.New(gapstone.CS_ARCH_X86, gapstone.CS_MODE_64)
	if err != nil {
		return engine, errors.Wrap(err, 0)
	}
	/* detailed options. enables parsing jump arguments */
	if err := engine.SetOption(gapstone.CS_OPT_DETAIL, gapstone.CS_OPT_ON); err != nil {
		engine.Close()
		return engine, errors.Wrap(err, 0)
	}
	return engine, nil
}

// Disassemble decodes code as x86-64 instructions located at base.
func Disassemble(base uint64, code []byte) ([]gapstone.Instruction, *errors.Error) {
	engine, eerr := newEngine()
	if eerr != nil {
		return nil, eerr
	}
	defer engine.Close()
	instrs, err := engine.Disasm(code, base, 0)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return instrs, nil
}

// Listing renders one line per instruction, suitable for trace output.
func Listing(base uint64, code []byte) ([]string, *errors.Error) {
	instrs, err := Disassemble(base, code)
	if err != nil {
		return nil, err
	}
	res := make([]string, len(instrs))
	for i, instr := range instrs {
		res[i] = fmt.Sprintf("0x%x: %s %s", instr.Address, instr.Mnemonic, instr.OpStr)
	}
	return res, nil
}

func search_start_addresses(instrs []gapstone.Instruction) map[uint64]bool {
	bb_starts := make(map[uint64]bool)
	if len(instrs) == 0 {
		return bb_starts
	}

	/* first instruction in code sequence => basic block */
	bb_starts[uint64(instrs[0].Address)] = true

	for _, instr := range instrs {
		if _, ok := jmp_flags[instr.Id]; !ok {
			continue
		}
		/* jmp destination => basic block */
		for _, op := range instr.X86.Operands {
			if op.Type == gapstone.X86_OP_IMM {
				bb_starts[uint64(op.Imm)] = true
			}
		}
		/* instruction succeeding a jump => basic block */
		bb_starts[uint64(instr.Address+instr.Size)] = true
	}
	return bb_starts
}

func transfers_of(instr gapstone.Instruction) []uint64 {
	if _, ok := jmp_flags[instr.Id]; !ok {
		return nil
	}
	res := make([]uint64, 0, 1)
	for _, op := range instr.X86.Operands {
		if op.Type == gapstone.X86_OP_IMM {
			res = append(res, uint64(op.Imm))
		}
	}
	return res
}

// GetBBs discovers the basic blocks of the instructions inside rng.
// Keys are block start addresses, ranges run to the end of the last
// instruction of the block.
func GetBBs(base uint64, code []byte, rng ds.Range) map[uint64]ds.BB {
	res := make(map[uint64]ds.BB)
	instrs, err := Disassemble(base, code)
	if err != nil {
		log.WithFields(log.Fields{"error": err, "base": base}).Error("Failed to disassemble region")
		return res
	}

	inside := make([]gapstone.Instruction, 0, len(instrs))
	for _, instr := range instrs {
		if rng.Include(uint64(instr.Address)) {
			inside = append(inside, instr)
		}
	}

	bb_starts := search_start_addresses(inside)

	cur_start := uint64(0)
	for i, instr := range inside {
		if bb_starts[uint64(instr.Address)] {
			cur_start = uint64(instr.Address)
		}
		next_addr := uint64(instr.Address + instr.Size)
		last := i == len(inside)-1
		if last || bb_starts[next_addr] {
			res[cur_start] = *ds.NewBB(cur_start, next_addr, transfers_of(instr))
		}
	}
	return res
}

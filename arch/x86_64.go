package arch

import (
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// SyscallExit is the x86-64 Linux exit(2) syscall number.
const SyscallExit = 60

type ArchX86_64 struct{}

func (s *ArchX86_64) GetRegisters() []int {
	return []int{
		uc.X86_REG_RAX, uc.X86_REG_RBX, uc.X86_REG_RCX, uc.X86_REG_RDX,
		uc.X86_REG_RSI, uc.X86_REG_RDI, uc.X86_REG_RBP, uc.X86_REG_RSP,
		uc.X86_REG_R8, uc.X86_REG_R9, uc.X86_REG_R10, uc.X86_REG_R11,
		uc.X86_REG_R12, uc.X86_REG_R13, uc.X86_REG_R14, uc.X86_REG_R15,
	}
}

func (s *ArchX86_64) IsRet(mem []byte) bool {
	return len(mem) > 0 && (mem[0] == 0xc3 || mem[0] == 0xc2)
}

func (s *ArchX86_64) GetRegIP() int {
	return uc.X86_REG_RIP
}

func (s *ArchX86_64) GetRegStack() int {
	return uc.X86_REG_RSP
}

func (s *ArchX86_64) GetRegRet() int {
	return uc.X86_REG_RAX
}

func (s *ArchX86_64) GetRegSyscall() int {
	return uc.X86_REG_RAX
}

func (s *ArchX86_64) GetSyscallArgs() []int {
	return []int{
		uc.X86_REG_RDI, uc.X86_REG_RSI, uc.X86_REG_RDX,
		uc.X86_REG_R10, uc.X86_REG_R8, uc.X86_REG_R9,
	}
}

func (s *ArchX86_64) ToUnicornArchDescription() int {
	return uc.ARCH_X86
}

func (s *ArchX86_64) ToUnicornModeDescription() int {
	return uc.MODE_64
}

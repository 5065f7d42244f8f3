package arch

type Arch interface {
	GetRegisters() []int
	IsRet(mem []byte) bool
	GetRegIP() int
	GetRegStack() int
	GetRegRet() int
	// Registers carrying syscall number and arguments, in ABI order.
	GetRegSyscall() int
	GetSyscallArgs() []int
	ToUnicornArchDescription() int //X86? ARM? PPC?
	ToUnicornModeDescription() int //32 or 64 bit
}

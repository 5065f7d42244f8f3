// Package emulator dry-runs instruction buffers under unicorn. The
// buffer is mapped at its stated addresses, registers start zeroed and
// the run stops at the buffer end, the instruction budget, or an exit
// syscall. Side effects are reported as events instead of happening.
package emulator

import (
	"fmt"
	"sort"

	"github.com/go-errors/errors"
	"github.com/ranmrdrakono/pagejump/arch"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
	log "github.com/sirupsen/logrus"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

const stack_base = uint64(0x7ffff0000000)
const stack_size = uint64(4 * ds.PageSize)

type Config struct {
	MaxTraceInstructionCount uint64
	MaxTraceTime             uint64
	Arch                     arch.Arch
	EventHandler             EventHandler
}

type EventHandler interface {
	ReadEvent(addr uint64)
	WriteEvent(addr, value uint64)
	SyscallEvent(number, arg uint64)
	InvalidInstructionEvent(addr uint64)
}

type Emulator struct {
	Config    Config
	mu        uc.Unicorn
	codepages map[uint64][]byte
	exited    bool
	status    uint64
}

func wrap(err error) *errors.Error {
	if err != nil {
		return errors.Wrap(err, 1)
	}
	return nil
}

func hex(val uint64) string {
	return fmt.Sprintf("0x%x", val)
}

func check_consistency(codepages map[uint64][]byte) *errors.Error {
	for addr := range codepages {
		if !ds.IsPageAligned(addr) {
			return errors.Errorf("codepage at %s breaks page alignment", hex(addr))
		}
	}
	return nil
}

func get_addresses_from_codepages(codepages map[uint64][]byte) []uint64 {
	res := make([]uint64, 0, len(codepages))
	for key := range codepages {
		res = append(res, key)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func NewEmulator(codepages map[uint64][]byte, conf Config) (*Emulator, *errors.Error) {
	if err := check_consistency(codepages); err != nil {
		return nil, err
	}
	res := new(Emulator)
	res.Config = conf
	res.codepages = codepages
	mu, err := uc.NewUnicorn(conf.Arch.ToUnicornArchDescription(), conf.Arch.ToUnicornModeDescription())
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	res.mu = mu
	if err := res.addHooks(); err != nil {
		return nil, err
	}
	if err := res.WriteMemory(codepages); err != nil {
		return nil, err
	}
	if err := res.setupStack(); err != nil {
		return nil, err
	}
	if err := res.ResetRegisters(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Emulator) Close() *errors.Error {
	mu := s.mu
	s.mu = nil
	return wrap(mu.Close())
}

func (s *Emulator) WriteMemory(codepages map[uint64][]byte) *errors.Error {
	for _, addr := range get_addresses_from_codepages(codepages) {
		val := codepages[addr]
		span := ds.PageSpan(ds.NewRange(addr, addr+uint64(len(val))))
		log.WithFields(log.Fields{"addr": hex(span.From), "length": span.Length()}).Debug("Map Memory")
		if err := s.mu.MemMapProt(span.From, span.Length(), uc.PROT_ALL); err != nil {
			return wrap(err)
		}
		log.WithFields(log.Fields{"addr": hex(addr), "length": len(val)}).Debug("Write Memory Content")
		if err := s.mu.MemWrite(addr, val); err != nil {
			return wrap(err)
		}
	}
	return nil
}

func (s *Emulator) setupStack() *errors.Error {
	if err := s.mu.MemMapProt(stack_base, stack_size, uc.PROT_READ|uc.PROT_WRITE); err != nil {
		return wrap(err)
	}
	sp := stack_base + stack_size/2
	return wrap(s.mu.RegWrite(s.Config.Arch.GetRegStack(), sp))
}

// ResetRegisters zeroes the register file so a dry run is
// deterministic, then restores the stack pointer.
func (s *Emulator) ResetRegisters() *errors.Error {
	for _, reg := range s.Config.Arch.GetRegisters() {
		if err := s.mu.RegWrite(reg, 0); err != nil {
			return wrap(err)
		}
	}
	return wrap(s.mu.RegWrite(s.Config.Arch.GetRegStack(), stack_base+stack_size/2))
}

// Exited reports whether the run ended in an exit syscall and with
// which status.
func (s *Emulator) Exited() (uint64, bool) {
	return s.status, s.exited
}

func (s *Emulator) end_of_buffer_containing(addr uint64) (uint64, bool) {
	for base, val := range s.codepages {
		if base <= addr && addr < base+uint64(len(val)) {
			return base + uint64(len(val)), true
		}
	}
	return 0, false
}

// Run executes from addr to the end of the buffer containing it.
func (s *Emulator) Run(addr uint64) *errors.Error {
	end, ok := s.end_of_buffer_containing(addr)
	if !ok {
		return errors.Errorf("no codepage contains %s", hex(addr))
	}
	log.WithFields(log.Fields{"addr": hex(addr), "to": hex(end)}).Debug("Run One Trace")
	opt := uc.UcOptions{Timeout: s.Config.MaxTraceTime, Count: s.Config.MaxTraceInstructionCount}
	err := s.mu.StartWithOptions(addr, end, &opt)
	log.WithFields(log.Fields{"addr": hex(addr), "to": hex(end)}).Debug("Finished One Trace")
	return s.handle_emulator_error(err)
}

func (s *Emulator) handle_emulator_error(err error) *errors.Error {
	if err == nil {
		return nil
	}
	uc_err, ok := err.(uc.UcError)
	if !ok {
		return wrap(err)
	}
	ip, _ := s.mu.RegRead(s.Config.Arch.GetRegIP())
	log.WithFields(log.Fields{"err": err, "ip": hex(ip)}).Debug("Emulator Error Occured")
	if uc_err == uc.ERR_INSN_INVALID || uc_err == uc.ERR_FETCH_UNMAPPED || uc_err == uc.ERR_FETCH_PROT {
		s.Config.EventHandler.InvalidInstructionEvent(ip)
		return nil
	}
	return wrap(err)
}

func (s *Emulator) handleMemoryEvent(access int, addr uint64, size int, value int64) {
	if size <= 0 {
		panic("invalid access size")
	}
	ip, _ := s.mu.RegRead(s.Config.Arch.GetRegIP())
	if access == uc.MEM_WRITE {
		if s.is_stack_access(addr) {
			log.WithFields(log.Fields{"at": hex(ip), "addr": hex(addr), "value": value}).Debug("Skip Write Event")
			return
		}
		log.WithFields(log.Fields{"at": hex(ip), "addr": hex(addr), "value": value, "size": size}).Debug("Write Event")
		s.Config.EventHandler.WriteEvent(addr, uint64(value))
	} else {
		if s.is_stack_access(addr) {
			log.WithFields(log.Fields{"at": hex(ip), "addr": hex(addr)}).Debug("Skip Read Event")
			return
		}
		log.WithFields(log.Fields{"at": hex(ip), "addr": hex(addr), "size": size}).Debug("Read Event")
		s.Config.EventHandler.ReadEvent(addr)
	}
}

func (s *Emulator) is_stack_access(addr uint64) bool {
	return addr >= stack_base && addr < stack_base+stack_size
}

func (s *Emulator) handleSyscall() {
	num, _ := s.mu.RegRead(s.Config.Arch.GetRegSyscall())
	arg, _ := s.mu.RegRead(s.Config.Arch.GetSyscallArgs()[0])
	log.WithFields(log.Fields{"num": num, "arg": hex(arg)}).Debug("Syscall Event")
	s.Config.EventHandler.SyscallEvent(num, arg)
	if num == arch.SyscallExit {
		s.exited = true
		s.status = arg
		s.mu.Stop()
	}
}

func (s *Emulator) addHooks() *errors.Error {
	_, err := s.mu.HookAdd(uc.HOOK_MEM_READ|uc.HOOK_MEM_WRITE, func(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
		s.handleMemoryEvent(access, addr, size, value)
	}, 1, 0)
	if err != nil {
		return wrap(err)
	}

	invalid := uc.HOOK_MEM_READ_INVALID | uc.HOOK_MEM_WRITE_INVALID | uc.HOOK_MEM_FETCH_INVALID
	_, err = s.mu.HookAdd(invalid, func(mu uc.Unicorn, access int, addr uint64, size int, value int64) bool {
		log.WithFields(log.Fields{"addr": hex(addr), "size": size}).Debug("invalid memory access")
		if access == uc.MEM_FETCH_UNMAPPED || access == uc.MEM_FETCH_PROT {
			return false
		}
		if access == uc.MEM_READ_UNMAPPED || access == uc.MEM_WRITE_UNMAPPED {
			base := ds.PageBase(addr)
			if err := mu.MemMapProt(base, ds.PageSize, uc.PROT_READ|uc.PROT_WRITE); err != nil {
				log.WithFields(log.Fields{"addr": hex(base), "error": err}).Error("Error Mapping page")
				return false
			}
			return true
		}
		log.WithFields(log.Fields{"addr": hex(addr), "access": access, "size": size}).Error("Unhandled Memory Error")
		return false
	}, 1, 0)
	if err != nil {
		return wrap(err)
	}

	_, err = s.mu.HookAdd(uc.HOOK_INSN, func(mu uc.Unicorn) {
		s.handleSyscall()
	}, 1, 0, uc.X86_INS_SYSCALL)
	return wrap(err)
}

package emulator

import (
	xxhash "github.com/OneOfOne/xxhash"
)

const initial_salt = uint64(0xbbed475f4c2c4c03)
const order_salt = uint64(0x6e53469168745d93)
const final_salt = uint64(0x12ef5c82f29260c5)

func to_byte_array(val uint64) []byte {
	bytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		bytes[i] = byte(val % 0xff)
		val = val / 0xff
	}
	return bytes
}

func fast_hash(salt, val uint64) uint64 {
	return xxhash.Checksum64S(to_byte_array(val), salt)
}

func ReadEventHash(addr uint64) uint64 {
	return fast_hash(initial_salt, addr)
}

func WriteEventHash(addr uint64, value uint64) uint64 {
	return fast_hash(fast_hash(initial_salt, addr), value)
}

func SysEventHash(syscallnum uint64, arg uint64) uint64 {
	return fast_hash(fast_hash(initial_salt, syscallnum), arg)
}

func InvalidInstructionEventHash(addr uint64) uint64 {
	return fast_hash(final_salt, addr)
}

package emulator

import (
	"sort"
	"strings"
)

// EventsToMinHash folds every observed event into a set of event
// hashes and derives an order-independent digest from them.
type EventsToMinHash struct {
	Events map[uint64]Event
}

func NewEventsToMinHash() *EventsToMinHash {
	res := new(EventsToMinHash)
	res.Events = make(map[uint64]Event)
	return res
}

func (s *EventsToMinHash) add(ev Event) {
	s.Events[ev.Hash()] = ev
}

func (s *EventsToMinHash) ReadEvent(addr uint64) {
	s.add(ReadEvent(addr))
}

func (s *EventsToMinHash) WriteEvent(addr, value uint64) {
	s.add(WriteEvent{Addr: addr, Value: value})
}

func (s *EventsToMinHash) SyscallEvent(number, arg uint64) {
	s.add(SyscallEvent{Num: number, Arg: arg})
}

func (s *EventsToMinHash) InvalidInstructionEvent(addr uint64) {
	s.add(InvalidInstructionEvent(addr))
}

func (s *EventsToMinHash) GetMaxEventByHash(seed uint64) uint64 {
	max_val := uint64(0)
	max_hash := uint64(0)

	for ev := range s.Events {
		hash := fast_hash(seed, ev)
		if hash > max_hash {
			max_val = ev
			max_hash = hash
		}
	}
	return max_val
}

func (s *EventsToMinHash) GetHash(length uint) []byte {
	curr_order_salt := order_salt
	res := make([]byte, length)
	for i := uint(0); i < length; i++ {
		res[i] = byte(fast_hash(final_salt, s.GetMaxEventByHash(curr_order_salt)))
		curr_order_salt = fast_hash(order_salt, curr_order_salt)
	}
	return res
}

func (s *EventsToMinHash) Inspect() string {
	lines := make([]string, 0, len(s.Events))
	for _, ev := range s.Events {
		lines = append(lines, ev.Inspect())
	}
	sort.Strings(lines)
	return strings.Join(lines, ", ")
}

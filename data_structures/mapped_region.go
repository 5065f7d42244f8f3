package data_structures

type PageFlags uint

const (
	X PageFlags = 1
	R PageFlags = 2
	W PageFlags = 4
)

func (f PageFlags) String() string {
	buf := []byte("---")
	if f&R != 0 {
		buf[0] = 'r'
	}
	if f&W != 0 {
		buf[1] = 'w'
	}
	if f&X != 0 {
		buf[2] = 'x'
	}
	return string(buf)
}

type MappedRegion struct {
	Data  []byte
	Flags PageFlags
	Range Range
}

func NewMappedRegion(data []byte, flags PageFlags, rng Range) *MappedRegion {
	return &MappedRegion{Data: data, Flags: flags, Range: rng}
}

func (s *MappedRegion) IsExecutable() bool {
	return s.Flags&X != 0
}

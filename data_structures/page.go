package data_structures

// PageSize is the protection granularity of the memory manager. All
// address masking in this repo assumes 4096-byte pages.
const PageSize = 4096

// PageBase masks addr down to the base of its containing page.
func PageBase(addr uint64) uint64 {
	return addr &^ uint64(PageSize-1)
}

// PageEnd rounds addr up to the next page boundary. An addr already on
// a boundary is returned unchanged.
func PageEnd(addr uint64) uint64 {
	return PageBase(addr + PageSize - 1)
}

func PageOffset(addr uint64) uint64 {
	return addr & uint64(PageSize-1)
}

func IsPageAligned(addr uint64) bool {
	return PageOffset(addr) == 0
}

// PageSpan is the smallest page-aligned range covering rng.
func PageSpan(rng Range) Range {
	return Range{From: PageBase(rng.From), To: PageEnd(rng.To)}
}

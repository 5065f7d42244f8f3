// Package elf loads 64-bit little-endian x86 ELF images into the
// repo's region/symbol types.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/go-errors/errors"
	ds "github.com/ranmrdrakono/pagejump/data_structures"
	log "github.com/sirupsen/logrus"
)

// Binary is a validated, fully parsed ELF image.
type Binary struct {
	Entry    uint64
	Type     elf.Type
	Machine  elf.Machine
	Segments map[ds.Range]*ds.MappedRegion
	Symbols  map[ds.Range]*ds.Symbol
}

func elfFlagsToPageFlags(in elf.ProgFlag) ds.PageFlags {
	res := ds.PageFlags(0)
	if in&elf.PF_X != 0 {
		res |= ds.X
	}
	if in&elf.PF_R != 0 {
		res |= ds.R
	}
	if in&elf.PF_W != 0 {
		res |= ds.W
	}
	return res
}

func validate(e *elf.File) *errors.Error {
	if e.Class != elf.ELFCLASS64 {
		return errors.Errorf("unsupported class %v, only ELF64 is parsed", e.Class)
	}
	if e.Data != elf.ELFDATA2LSB {
		return errors.Errorf("unsupported encoding %v, only little endian is parsed", e.Data)
	}
	switch e.Machine {
	case elf.EM_386, elf.EM_X86_64:
	default:
		return errors.Errorf("unsupported machine %v", e.Machine)
	}
	switch e.Type {
	case elf.ET_NONE, elf.ET_REL, elf.ET_EXEC, elf.ET_DYN, elf.ET_CORE:
	default:
		return errors.Errorf("unsupported file type %v", e.Type)
	}
	return nil
}

func GetSegments(e *elf.File) (map[ds.Range]*ds.MappedRegion, *errors.Error) {
	res := make(map[ds.Range]*ds.MappedRegion)
	for _, prog := range e.Progs {
		hdr := prog.ProgHeader
		if hdr.Off == 0 && hdr.Filesz == 0 {
			continue
		}
		info := new(ds.MappedRegion)
		info.Range = ds.NewRange(hdr.Vaddr, hdr.Vaddr+hdr.Memsz)
		info.Data = make([]byte, hdr.Filesz)
		info.Flags = elfFlagsToPageFlags(hdr.Flags)
		size_read, err := io.ReadFull(prog.Open(), info.Data)
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
		if uint64(size_read) != hdr.Filesz {
			return nil, errors.Errorf("segment at %x: read %d of %d bytes", hdr.Vaddr, size_read, hdr.Filesz)
		}
		res[info.Range] = info
	}
	return res, nil
}

func elfSymbolTypeToSymbolType(elfsymbol uint) ds.SymbolType {
	switch elf.SymType(elfsymbol & 0xf) {
	case elf.STT_OBJECT:
		return ds.DATA
	case elf.STT_COMMON:
		return ds.DATA
	case elf.STT_FUNC:
		return ds.FUNC
	case elf.STT_FILE:
		return ds.FILE
	case elf.STT_TLS:
		return ds.THREADLOCAL
	case elf.STT_SECTION:
		return ds.SECTION
	}
	log.WithFields(log.Fields{"elfsymbol": elfsymbol & 0xf}).Info("Failed to Interpret Symbol")
	return ds.UNKNOWN
}

func GetSymbols(e *elf.File) map[ds.Range]*ds.Symbol {
	res := make(map[ds.Range]*ds.Symbol)
	symbols, err := e.Symbols()
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Info("Failed to Parse Symbols")
		return res
	}
	for _, sym := range symbols {
		sym_type := elfSymbolTypeToSymbolType(uint(sym.Info))
		res[ds.NewRange(sym.Value, sym.Value+sym.Size)] = ds.NewSymbol(sym.Name, sym_type)
	}
	return res
}

// GetRelocations collects the entries of every SHT_RELA section.
func GetRelocations(e *elf.File) ([]elf.Rela64, *errors.Error) {
	var res []elf.Rela64
	for _, sec := range e.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
		r := bytes.NewReader(data)
		for r.Len() >= 24 {
			var rela elf.Rela64
			if err := binary.Read(r, e.ByteOrder, &rela); err != nil {
				return nil, errors.Wrap(err, 0)
			}
			res = append(res, rela)
		}
	}
	return res, nil
}

func Load(r io.ReaderAt) (*Binary, *errors.Error) {
	e, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	if verr := validate(e); verr != nil {
		return nil, verr
	}
	segments, serr := GetSegments(e)
	if serr != nil {
		return nil, serr
	}
	b := &Binary{
		Entry:    e.Entry,
		Type:     e.Type,
		Machine:  e.Machine,
		Segments: segments,
		Symbols:  GetSymbols(e),
	}
	log.WithFields(log.Fields{
		"entry":    b.Entry,
		"type":     b.Type,
		"machine":  b.Machine,
		"segments": len(b.Segments),
		"symbols":  len(b.Symbols),
	}).Debug("Loaded Elf")
	return b, nil
}

// ExecRegions returns the executable segments as page-addressed
// codepages, the shape the emulator consumes.
func (b *Binary) ExecRegions() map[uint64][]byte {
	res := make(map[uint64][]byte)
	for _, region := range b.Segments {
		if !region.IsExecutable() {
			continue
		}
		base := ds.PageBase(region.Range.From)
		if base == region.Range.From {
			res[base] = region.Data
			continue
		}
		// Re-anchor segments that start mid-page.
		pad := region.Range.From - base
		buf := make([]byte, pad+uint64(len(region.Data)))
		copy(buf[pad:], region.Data)
		res[base] = buf
	}
	return res
}

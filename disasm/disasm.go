// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm decodes instruction ranges of a traced executable. Bytes
// are read from the on-disk ELF image rather than the live process, so the
// listing shows the real instructions instead of the debugger's own int3
// patches.
package disasm

import (
	"debug/elf"
	"fmt"
	"os"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/palepen/sylvan/status"
)

// Instruction is one decoded instruction: its runtime address, the raw
// opcode bytes as a hex dump, and the decoded text.
type Instruction struct {
	Addr    uint64
	Opcodes string
	Text    string
}

// fileRange maps a virtual address onto a file offset through the
// loadable program headers and reports how many image bytes remain in the
// segment from that point.
func fileRange(f *elf.File, vaddr uint64) (offset, max uint64, err error) {
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if vaddr < p.Vaddr || vaddr >= p.Vaddr+p.Memsz {
			continue
		}
		skip := vaddr - p.Vaddr
		if skip >= p.Filesz {
			break
		}
		return p.Off + skip, p.Filesz - skip, nil
	}
	return 0, 0, status.Msgf(status.InvalidArgument, "virtual address %#x not found in any loadable segment", vaddr)
}

// decode disassembles buf as x86-64 long-mode code starting at addr,
// stopping at the first byte the decoder rejects.
func decode(buf []byte, addr uint64) []Instruction {
	var out []Instruction
	offset := 0
	for offset < len(buf) {
		inst, err := x86asm.Decode(buf[offset:], 64)
		if err != nil {
			break
		}

		var hex strings.Builder
		for i := 0; i < inst.Len; i++ {
			if i > 0 {
				hex.WriteByte(' ')
			}
			fmt.Fprintf(&hex, "%02X", buf[offset+i])
		}

		out = append(out, Instruction{
			Addr:    addr,
			Opcodes: hex.String(),
			Text:    x86asm.IntelSyntax(inst, addr, nil),
		})

		offset += inst.Len
		addr += uint64(inst.Len)
	}
	return out
}

// Range disassembles [start, end) of the executable at path. The size is
// clamped to the bytes the containing segment actually carries in the
// file.
func Range(path string, start, end uint64) ([]Instruction, error) {
	if path == "" {
		return nil, status.Msgf(status.InvalidArgument, "no executable path specified")
	}
	if start >= end {
		return nil, status.Msgf(status.InvalidArgument, "invalid address range %#x..%#x", start, end)
	}

	f, err := elf.Open(path)
	if err != nil {
		return nil, status.Msgf(status.ElfFailed, "cannot load %s: %v", path, err)
	}
	defer f.Close()

	offset, max, err := fileRange(f, start)
	if err != nil {
		return nil, err
	}

	size := end - start
	if size > max {
		size = max
	}

	buf := make([]byte, size)
	r, err := os.Open(path)
	if err != nil {
		return nil, status.Errnof(status.SystemError, 0, "open %s: %v", path, err)
	}
	defer r.Close()
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return nil, status.Msgf(status.SystemError, "read %s at %#x: %v", path, offset, err)
	}

	return decode(buf, start), nil
}

// Function disassembles the named function, with the range taken from its
// SYMTAB entry.
func Function(path, name string) ([]Instruction, error) {
	start, size, err := functionBounds(path, name)
	if err != nil {
		return nil, err
	}
	return Range(path, start, start+size)
}

// functionBounds finds the STT_FUNC symbol table entry for name.
func functionBounds(path, name string) (start, size uint64, err error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, 0, status.Msgf(status.ElfFailed, "cannot load %s: %v", path, err)
	}
	defer f.Close()

	syms, err := f.Symbols()
	if err != nil {
		return 0, 0, status.Msgf(status.ElfFailed, "cannot read symbol table: %v", err)
	}
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Name != name {
			continue
		}
		return sym.Value, sym.Size, nil
	}
	return 0, 0, status.Msgf(status.SymbolNotFound, "function %.256q not found in %s", name, path)
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbols resolves function names to virtual addresses for a
// traced executable. Two tables are kept per inferior: one built from the
// ELF symbol tables (SYMTAB and DYNSYM, executable sections only) and one
// from the DWARF subprogram DIEs. Lookups consult DWARF first.
package symbols

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"sort"
	"strings"

	"github.com/palepen/sylvan/status"
)

// Symbol is a name with the virtual address it resolves to.
type Symbol struct {
	Name string
	Addr uint64
}

// Table is a name-sorted symbol array with binary-search lookup.
type Table struct {
	syms   []Symbol
	sorted bool
}

// NewTable returns an empty table.
func NewTable() *Table { return &Table{sorted: true} }

// Add appends a symbol and marks the table unsorted; Lookup and All
// re-sort it on demand.
func (t *Table) Add(name string, addr uint64) {
	t.syms = append(t.syms, Symbol{Name: name, Addr: addr})
	t.sorted = false
}

// Sort orders the table by name, byte-wise ascending.
func (t *Table) Sort() {
	sort.Slice(t.syms, func(i, j int) bool {
		return t.syms[i].Name < t.syms[j].Name
	})
	t.sorted = true
}

// Lookup binary-searches the table for name.
func (t *Table) Lookup(name string) (uint64, bool) {
	if !t.sorted {
		t.Sort()
	}
	i := sort.Search(len(t.syms), func(i int) bool {
		return strings.Compare(t.syms[i].Name, name) >= 0
	})
	if i < len(t.syms) && t.syms[i].Name == name {
		return t.syms[i].Addr, true
	}
	return 0, false
}

// Len returns the number of symbols in the table.
func (t *Table) Len() int { return len(t.syms) }

// All returns the sorted symbols.
func (t *Table) All() []Symbol {
	if !t.sorted {
		t.Sort()
	}
	return t.syms
}

// Load builds the ELF and DWARF tables for the executable at path. A
// binary without DWARF info yields an empty DWARF table, not an error.
func Load(path string) (elfTab, dwarfTab *Table, err error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, nil, status.Msgf(status.ElfFailed, "cannot load %s: %v", path, err)
	}
	defer f.Close()

	elfTab = NewTable()
	if err := loadELF(f, elfTab); err != nil {
		return nil, nil, err
	}
	elfTab.Sort()

	dwarfTab = NewTable()
	loadDWARF(f, dwarfTab)
	dwarfTab.Sort()

	return elfTab, dwarfTab, nil
}

// loadELF emits every SYMTAB/DYNSYM entry whose containing section is
// executable. The debugger only ever resolves code addresses, so data
// symbols are skipped here.
func loadELF(f *elf.File, tab *Table) error {
	for _, get := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
		syms, err := get()
		if errors.Is(err, elf.ErrNoSymbols) {
			continue
		}
		if err != nil {
			return status.Msgf(status.ElfFailed, "cannot read symbol table: %v", err)
		}
		for _, sym := range syms {
			if sym.Name == "" {
				continue
			}
			idx := int(sym.Section)
			if idx <= 0 || idx >= len(f.Sections) {
				continue
			}
			if f.Sections[idx].Flags&elf.SHF_EXECINSTR == 0 {
				continue
			}
			tab.Add(sym.Name, sym.Value)
		}
	}
	return nil
}

// loadDWARF emits every subprogram DIE carrying both a name and a low pc.
// Missing debug info is not an error.
func loadDWARF(f *elf.File, tab *Table) {
	data, err := f.DWARF()
	if err != nil {
		return
	}
	r := data.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			return
		}
		if entry.Tag != dwarf.TagSubprogram {
			continue
		}
		name, ok := entry.Val(dwarf.AttrName).(string)
		if !ok {
			continue
		}
		lowpc, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}
		tab.Add(name, lowpc)
	}
}

// Resolve looks name up in the DWARF table first, falling back to ELF.
func Resolve(dwarfTab, elfTab *Table, name string) (uint64, error) {
	if dwarfTab != nil {
		if addr, ok := dwarfTab.Lookup(name); ok {
			return addr, nil
		}
	}
	if elfTab != nil {
		if addr, ok := elfTab.Lookup(name); ok {
			return addr, nil
		}
	}
	return 0, status.Msgf(status.SymbolNotFound, "%.256s not found", name)
}

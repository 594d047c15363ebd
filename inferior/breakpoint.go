// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"github.com/palepen/sylvan/status"
)

// MaxBreakpoints is the fixed capacity of the breakpoint table.
const MaxBreakpoints = 256

// int3 is the single-byte trap instruction installed at breakpoint
// addresses.
const int3 = 0xCC

// Breakpoint is one record in an inferior's table. EnabledLogical is the
// user's intent and survives process death; EnabledPhysical is true only
// while the int3 patch is installed in a live tracee, with the replaced
// byte held in OrigByte.
type Breakpoint struct {
	Addr            uintptr
	OrigByte        byte
	EnabledLogical  bool
	EnabledPhysical bool
}

// textPatcher performs the word-granular reads and writes behind
// breakpoint patching. The inferior's ptrace implementation satisfies it;
// tests substitute a fake tracee image.
type textPatcher interface {
	peekWord(addr uintptr) (uint64, error)
	pokeWord(addr uintptr, word uint64) error
}

func (inf *Inferior) peekWord(addr uintptr) (uint64, error) {
	var buf [8]byte
	if err := inf.ptracePeekText(inf.pid, addr, buf[:]); err != nil {
		return 0, err
	}
	return leUint64(buf[:]), nil
}

func (inf *Inferior) pokeWord(addr uintptr, word uint64) error {
	var buf [8]byte
	lePutUint64(buf[:], word)
	return inf.ptracePokeText(inf.pid, addr, buf[:])
}

// Breakpoints returns a snapshot of the table in insertion order.
func (inf *Inferior) Breakpoints() []Breakpoint {
	out := make([]Breakpoint, len(inf.breakpoints))
	copy(out, inf.breakpoints)
	return out
}

// findBreakpoint returns the record at addr and its index, or (nil, -1).
func (inf *Inferior) findBreakpoint(addr uintptr) (*Breakpoint, int) {
	for i := range inf.breakpoints {
		if inf.breakpoints[i].Addr == addr {
			return &inf.breakpoints[i], i
		}
	}
	return nil, -1
}

// install patches the byte at bp.Addr with int3, saving the original.
// Idempotent: an already-installed record is left alone.
func (inf *Inferior) install(bp *Breakpoint) error {
	if bp.EnabledPhysical {
		return nil
	}

	word, err := inf.text.peekWord(bp.Addr)
	if err != nil {
		return status.Errnof(status.PtracePeekTextFailed, errnoOf(err), "ptrace peek text")
	}

	if err := inf.text.pokeWord(bp.Addr, word&^0xFF|int3); err != nil {
		return status.Errnof(status.PtracePokeTextFailed, errnoOf(err), "ptrace poke text")
	}

	bp.OrigByte = byte(word)
	bp.EnabledPhysical = true
	return nil
}

// uninstall restores the original byte at bp.Addr. Idempotent.
func (inf *Inferior) uninstall(bp *Breakpoint) error {
	if !bp.EnabledPhysical {
		return nil
	}

	word, err := inf.text.peekWord(bp.Addr)
	if err != nil {
		return status.Errnof(status.PtracePeekTextFailed, errnoOf(err), "ptrace peek text")
	}

	if err := inf.text.pokeWord(bp.Addr, word&^0xFF|uint64(bp.OrigByte)); err != nil {
		return status.Errnof(status.PtracePokeTextFailed, errnoOf(err), "ptrace poke text")
	}

	bp.EnabledPhysical = false
	return nil
}

// clearPhysicalFlags marks every record as not installed. Used right
// after spawn or attach, when the new address space carries none of our
// patches.
func (inf *Inferior) clearPhysicalFlags() {
	for i := range inf.breakpoints {
		inf.breakpoints[i].EnabledPhysical = false
	}
}

// installAllLogical installs every record the user wants enabled.
func (inf *Inferior) installAllLogical() error {
	for i := range inf.breakpoints {
		if !inf.breakpoints[i].EnabledLogical {
			continue
		}
		if err := inf.install(&inf.breakpoints[i]); err != nil {
			return err
		}
	}
	return nil
}

// uninstallAll restores the original byte of every installed record.
func (inf *Inferior) uninstallAll() error {
	for i := range inf.breakpoints {
		if err := inf.uninstall(&inf.breakpoints[i]); err != nil {
			return err
		}
	}
	return nil
}

// SetBreakpoint appends an enabled record for addr, patching the live
// tracee when one exists.
func (inf *Inferior) SetBreakpoint(addr uintptr) error {
	if len(inf.breakpoints) == MaxBreakpoints {
		return status.SetCode(status.BreakpointLimitReached)
	}
	if bp, _ := inf.findBreakpoint(addr); bp != nil {
		return status.SetCode(status.BreakpointAlreadyExists)
	}

	inf.breakpoints = append(inf.breakpoints, Breakpoint{
		Addr:           addr,
		EnabledLogical: true,
	})

	if !inf.state.active() {
		return nil
	}
	return inf.install(&inf.breakpoints[len(inf.breakpoints)-1])
}

// UnsetBreakpoint restores the original byte if installed and removes the
// record, swapping the last record into the freed slot.
func (inf *Inferior) UnsetBreakpoint(addr uintptr) error {
	bp, idx := inf.findBreakpoint(addr)
	if bp == nil {
		return status.SetCode(status.BreakpointNotFound)
	}

	if inf.state.active() {
		if err := inf.uninstall(bp); err != nil {
			return err
		}
	}

	last := len(inf.breakpoints) - 1
	inf.breakpoints[idx] = inf.breakpoints[last]
	inf.breakpoints = inf.breakpoints[:last]
	return nil
}

// EnableBreakpoint records the user's intent and patches the live tracee
// when one exists.
func (inf *Inferior) EnableBreakpoint(addr uintptr) error {
	bp, _ := inf.findBreakpoint(addr)
	if bp == nil {
		return status.SetCode(status.BreakpointNotFound)
	}

	bp.EnabledLogical = true
	if !inf.state.active() {
		return nil
	}
	return inf.install(bp)
}

// DisableBreakpoint clears the user's intent and lifts the patch from the
// live tracee when one exists.
func (inf *Inferior) DisableBreakpoint(addr uintptr) error {
	bp, _ := inf.findBreakpoint(addr)
	if bp == nil {
		return status.SetCode(status.BreakpointNotFound)
	}

	bp.EnabledLogical = false
	if !inf.state.active() {
		return nil
	}
	return inf.uninstall(bp)
}

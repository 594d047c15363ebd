// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/status"
)

// RegisterInfo describes one general-purpose register: its lower-case
// mnemonic, DWARF register number, width in bytes, and byte offset within
// the kernel's register layout.
type RegisterInfo struct {
	Name    string
	DwarfID int
	Size    int
	Offset  uintptr
}

// registers is the fixed x86-64 general-register metadata table, offsets
// taken from the PTRACE_GETREGS layout.
var registers = []RegisterInfo{
	{"rax", 0, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rax)},
	{"rdx", 1, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rdx)},
	{"rcx", 2, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rcx)},
	{"rbx", 3, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rbx)},
	{"rsi", 4, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rsi)},
	{"rdi", 5, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rdi)},
	{"rbp", 6, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rbp)},
	{"rsp", 7, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rsp)},
	{"r8", 8, 8, unsafe.Offsetof(unix.PtraceRegs{}.R8)},
	{"r9", 9, 8, unsafe.Offsetof(unix.PtraceRegs{}.R9)},
	{"r10", 10, 8, unsafe.Offsetof(unix.PtraceRegs{}.R10)},
	{"r11", 11, 8, unsafe.Offsetof(unix.PtraceRegs{}.R11)},
	{"r12", 12, 8, unsafe.Offsetof(unix.PtraceRegs{}.R12)},
	{"r13", 13, 8, unsafe.Offsetof(unix.PtraceRegs{}.R13)},
	{"r14", 14, 8, unsafe.Offsetof(unix.PtraceRegs{}.R14)},
	{"r15", 15, 8, unsafe.Offsetof(unix.PtraceRegs{}.R15)},
	{"rip", 16, 8, unsafe.Offsetof(unix.PtraceRegs{}.Rip)},
	{"eflags", 49, 8, unsafe.Offsetof(unix.PtraceRegs{}.Eflags)},
	{"es", 50, 8, unsafe.Offsetof(unix.PtraceRegs{}.Es)},
	{"cs", 51, 8, unsafe.Offsetof(unix.PtraceRegs{}.Cs)},
	{"ss", 52, 8, unsafe.Offsetof(unix.PtraceRegs{}.Ss)},
	{"ds", 53, 8, unsafe.Offsetof(unix.PtraceRegs{}.Ds)},
	{"fs", 54, 8, unsafe.Offsetof(unix.PtraceRegs{}.Fs)},
	{"gs", 55, 8, unsafe.Offsetof(unix.PtraceRegs{}.Gs)},
	{"orig_rax", -1, 8, unsafe.Offsetof(unix.PtraceRegs{}.Orig_rax)},
}

// Registers returns the register metadata table.
func Registers() []RegisterInfo { return registers }

// LookupRegister finds the metadata for a lower-case register mnemonic.
func LookupRegister(name string) (RegisterInfo, bool) {
	for _, r := range registers {
		if r.Name == name {
			return r, true
		}
	}
	return RegisterInfo{}, false
}

// RegValue reads one register out of a fetched register set by its
// metadata entry.
func RegValue(regs *unix.PtraceRegs, info RegisterInfo) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(unsafe.Pointer(regs)) + info.Offset))
}

// SetRegValue writes one register into a register set by its metadata
// entry.
func SetRegValue(regs *unix.PtraceRegs, info RegisterInfo, value uint64) {
	*(*uint64)(unsafe.Pointer(uintptr(unsafe.Pointer(regs)) + info.Offset)) = value
}

// GetRegs reads the general-register set of the tracee. The child must be
// stopped or running under trace.
func (inf *Inferior) GetRegs(regs *unix.PtraceRegs) error {
	if regs == nil {
		return status.SetCode(status.InvalidArgument)
	}
	if err := inf.reconcile(false); err != nil {
		return err
	}
	if !inf.state.active() {
		return status.Msgf(status.InvalidState, "cannot get registers: process is not running or stopped")
	}
	if err := inf.ptraceGetRegs(inf.pid, regs); err != nil {
		return status.Errnof(status.PtraceGetRegsFailed, errnoOf(err), "ptrace get regs")
	}
	return nil
}

// SetRegs writes the general-register set of the tracee.
func (inf *Inferior) SetRegs(regs *unix.PtraceRegs) error {
	if regs == nil {
		return status.SetCode(status.InvalidArgument)
	}
	if err := inf.reconcile(false); err != nil {
		return err
	}
	if !inf.state.active() {
		return status.Msgf(status.InvalidState, "cannot set registers: process is not running or stopped")
	}
	if err := inf.ptraceSetRegs(inf.pid, regs); err != nil {
		return status.Errnof(status.PtraceSetRegsFailed, errnoOf(err), "ptrace set regs")
	}
	return nil
}

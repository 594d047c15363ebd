// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/disasm"
	"github.com/palepen/sylvan/inferior"
)

func printRegisters(s *session) error {
	var regs unix.PtraceRegs
	if err := s.inf.GetRegs(&regs); err != nil {
		return err
	}

	t := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(t, "register\tvalue\t\n")
	for _, info := range inferior.Registers() {
		fmt.Fprintf(t, "%s\t%#018x\t\n", info.Name, inferior.RegValue(&regs, info))
	}
	return t.Flush()
}

func printBreakpoints(s *session) {
	bps := s.inf.Breakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(s.out, "no breakpoints set")
		return
	}

	t := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(t, "num\taddress\tenabled\tinstalled\t\n")
	for i, bp := range bps {
		fmt.Fprintf(t, "%d\t%#x\t%v\t%v\t\n", i, bp.Addr, bp.EnabledLogical, bp.EnabledPhysical)
	}
	t.Flush()
}

func printAuxv(s *session) error {
	data, err := s.inf.ReadAuxv()
	if err != nil {
		return err
	}

	t := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(t, "type\tname\tvalue\t\n")
	for _, entry := range inferior.ParseAuxv(data) {
		switch entry.Type {
		case inferior.AuxPagesz, inferior.AuxPhent, inferior.AuxPhnum,
			inferior.AuxUID, inferior.AuxEUID, inferior.AuxGID,
			inferior.AuxEGID, inferior.AuxClktck, inferior.AuxMinSigstksz:
			fmt.Fprintf(t, "%d\t%s\t%d\t\n", entry.Type, inferior.AuxvTypeName(entry.Type), entry.Value)
		default:
			fmt.Fprintf(t, "%d\t%s\t%#x\t\n", entry.Type, inferior.AuxvTypeName(entry.Type), entry.Value)
		}
	}
	return t.Flush()
}

func printInferior(s *session) {
	t := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(t, "id\tpid\tstate\tattached\texecutable\t\n")
	exe := s.inf.ExecPath()
	if exe == "" {
		exe = "<none>"
	}
	fmt.Fprintf(t, "%d\t%d\t%s\t%v\t%s\t\n", s.inf.ID(), s.inf.Pid(), s.inf.State(), s.inf.Attached(), exe)
	t.Flush()
}

func printDisassembly(s *session, insts []disasm.Instruction) {
	t := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(t, "address\topcodes\tinstruction\t\n")
	for _, in := range insts {
		fmt.Fprintf(t, "%#016x\t%s\t%s\t\n", in.Addr, in.Opcodes, in.Text)
	}
	t.Flush()
}

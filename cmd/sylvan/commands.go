// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/disasm"
	"github.com/palepen/sylvan/inferior"
	"github.com/palepen/sylvan/status"
)

func init() {
	register(&command{
		name:    "help",
		summary: "list available commands",
		run: func(s *session, args []string) error {
			helpText(s.out)
			return nil
		},
	})
	register(&command{
		name:    "quit",
		summary: "exit the debugger",
		run: func(s *session, args []string) error {
			s.quit = true
			return nil
		},
	})
	register(&command{
		name:    "file",
		summary: "choose the executable to debug",
		usage:   "file <path>",
		run:     cmdFile,
	})
	register(&command{
		name:    "args",
		summary: "set the argument string for the next run",
		usage:   "args [string...]",
		run:     cmdArgs,
	})
	register(&command{
		name:    "run",
		summary: "spawn the program under trace",
		run:     cmdRun,
	})
	register(&command{
		name:    "continue",
		summary: "resume the stopped program",
		run:     cmdContinue,
	})
	register(&command{
		name:    "stepinst",
		summary: "execute one instruction",
		run:     cmdStepInst,
	})
	register(&command{
		name:    "attach",
		summary: "attach to a running process",
		usage:   "attach <pid>",
		run:     cmdAttach,
	})
	register(&command{
		name:    "detach",
		summary: "release the attached process",
		run:     cmdDetach,
	})
	register(&command{
		name:    "kill",
		summary: "kill the traced process",
		run:     cmdKill,
	})
	register(&command{
		name:    "breakpoint",
		summary: "set a breakpoint at an address or function",
		usage:   "breakpoint <addr|function>",
		run:     cmdBreakpoint,
	})
	register(&command{
		name:    "delete",
		summary: "remove a breakpoint",
		usage:   "delete <addr>",
		run:     cmdDelete,
	})
	register(&command{
		name:    "enable",
		summary: "enable a breakpoint",
		usage:   "enable <addr>",
		run:     cmdEnable,
	})
	register(&command{
		name:    "disable",
		summary: "disable a breakpoint",
		usage:   "disable <addr>",
		run:     cmdDisable,
	})
	register(&command{
		name:    "info",
		summary: "show registers, breakpoints, auxv, or the inferior",
		usage:   "info registers|breakpoints|auxv|inferior",
		run:     cmdInfo,
	})
	register(&command{
		name:    "register",
		summary: "read or write one register",
		usage:   "register read <name> | register write <name> <value>",
		run:     cmdRegister,
	})
	register(&command{
		name:    "memory",
		summary: "read or write tracee memory",
		usage:   "memory read <addr> | memory write <addr> <hexbytes>",
		run:     cmdMemory,
	})
	register(&command{
		name:    "disassemble",
		summary: "disassemble an address range or function",
		usage:   "disassemble <start> <end> | disassemble <function>",
		run:     cmdDisassemble,
	})
	register(&command{
		name:    "symbol",
		summary: "resolve a function name to an address",
		usage:   "symbol <name>",
		run:     cmdSymbol,
	})
}

func usageError(s *session, c string) error {
	cmd, _ := lookupCommand(c)
	fmt.Fprintf(s.out, "usage: %s\n", cmd.usage)
	return nil
}

// parseAddr accepts decimal, 0x-hex, and octal address literals.
func parseAddr(text string) (uintptr, error) {
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, status.Msgf(status.InvalidArgument, "invalid address %q", text)
	}
	return uintptr(v), nil
}

func cmdFile(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "file")
	}
	if err := s.inf.SetExecPath(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "executable set to %s\n", s.inf.ExecPath())
	return nil
}

func cmdArgs(s *session, args []string) error {
	s.inf.SetArgs(strings.Join(args, " "))
	return nil
}

func cmdRun(s *session, args []string) error {
	return s.inf.Run()
}

func cmdContinue(s *session, args []string) error {
	return s.inf.Continue()
}

func cmdStepInst(s *session, args []string) error {
	return s.inf.StepInstruction()
}

func cmdAttach(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "attach")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil || pid <= 0 {
		return status.Msgf(status.InvalidArgument, "invalid pid %q", args[0])
	}
	if err := s.inf.Attach(pid); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "attached to process %d\n", pid)
	return nil
}

func cmdDetach(s *session, args []string) error {
	if err := s.inf.Detach(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "detached")
	return nil
}

func cmdKill(s *session, args []string) error {
	return s.inf.Kill()
}

func cmdBreakpoint(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "breakpoint")
	}
	if addr, err := parseAddr(args[0]); err == nil {
		if err := s.inf.SetBreakpoint(addr); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "breakpoint set at %#x\n", addr)
		return nil
	}
	if err := s.inf.SetBreakpointAtFunction(args[0]); err != nil {
		return err
	}
	addr, _ := s.inf.ResolveSymbol(args[0])
	fmt.Fprintf(s.out, "breakpoint set at %#x (%s)\n", addr, args[0])
	return nil
}

func cmdDelete(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "delete")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	return s.inf.UnsetBreakpoint(addr)
}

func cmdEnable(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "enable")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	return s.inf.EnableBreakpoint(addr)
}

func cmdDisable(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "disable")
	}
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	return s.inf.DisableBreakpoint(addr)
}

func cmdInfo(s *session, args []string) error {
	if len(args) == 0 {
		return usageError(s, "info")
	}
	switch args[0] {
	case "registers", "regs", "r":
		return printRegisters(s)
	case "breakpoints", "break":
		printBreakpoints(s)
		return nil
	case "auxv":
		return printAuxv(s)
	case "inferior", "inferiors":
		printInferior(s)
		return nil
	}
	return usageError(s, "info")
}

func cmdRegister(s *session, args []string) error {
	if len(args) < 2 {
		return usageError(s, "register")
	}

	info, ok := inferior.LookupRegister(strings.ToLower(args[1]))
	if !ok {
		return status.Msgf(status.InvalidArgument, "unknown register %q", args[1])
	}

	var regs unix.PtraceRegs
	if err := s.inf.GetRegs(&regs); err != nil {
		return err
	}

	switch args[0] {
	case "read":
		fmt.Fprintf(s.out, "%-8s %#018x\n", info.Name, inferior.RegValue(&regs, info))
		return nil
	case "write":
		if len(args) != 3 {
			return usageError(s, "register")
		}
		value, err := strconv.ParseUint(args[2], 0, 64)
		if err != nil {
			return status.Msgf(status.InvalidArgument, "invalid register value %q", args[2])
		}
		inferior.SetRegValue(&regs, info, value)
		return s.inf.SetRegs(&regs)
	}
	return usageError(s, "register")
}

func cmdMemory(s *session, args []string) error {
	if len(args) < 2 {
		return usageError(s, "memory")
	}

	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "read":
		word, err := s.inf.GetMemory(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%#x: %#018x\n", addr, word)
		return nil
	case "write":
		if len(args) != 3 {
			return usageError(s, "memory")
		}
		data, err := hex.DecodeString(strings.TrimPrefix(args[2], "0x"))
		if err != nil {
			return status.Msgf(status.InvalidArgument, "invalid byte string %q", args[2])
		}
		return s.inf.SetMemory(addr, data)
	}
	return usageError(s, "memory")
}

func cmdDisassemble(s *session, args []string) error {
	path := s.inf.ExecPath()

	switch len(args) {
	case 1:
		insts, err := disasm.Function(path, args[0])
		if err != nil {
			return err
		}
		printDisassembly(s, insts)
		return nil
	case 2:
		start, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		end, err := parseAddr(args[1])
		if err != nil {
			return err
		}
		insts, err := disasm.Range(path, uint64(start), uint64(end))
		if err != nil {
			return err
		}
		printDisassembly(s, insts)
		return nil
	}
	return usageError(s, "disassemble")
}

func cmdSymbol(s *session, args []string) error {
	if len(args) != 1 {
		return usageError(s, "symbol")
	}
	addr, err := s.inf.ResolveSymbol(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s = %#x\n", args[0], addr)
	return nil
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

// Package inferior implements the control engine for one traced child
// process: lifecycle state, spawn/attach/detach/kill, continue and
// single-step, register and memory access, and the breakpoint table that
// survives process replacement.
//
// All trace-control requests for an inferior are funnelled onto a single
// locked OS thread; the kernel only honors ptrace requests from the thread
// that attached the tracee.
package inferior

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/palepen/sylvan/paths"
	"github.com/palepen/sylvan/status"
	"github.com/palepen/sylvan/symbols"
)

// State is the cached lifecycle state of the traced child.
type State int

const (
	// None means no child exists under our trace.
	None State = iota
	// Running means the child is executing.
	Running
	// Stopped means the child is stopped under our trace.
	Stopped
	// Exited means the child exited normally and was reaped.
	Exited
	// Terminated means the child was killed by a signal and reaped.
	Terminated
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Exited:
		return "exited"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// active reports whether a real kernel process exists under our trace.
func (s State) active() bool { return s == Running || s == Stopped }

var (
	nextID    atomic.Int64
	liveCount atomic.Int64
)

// Count returns the number of live inferiors.
func Count() int { return int(liveCount.Load()) }

// Inferior is the debugger's handle to one traced child. The zero value is
// not usable; construct with New.
type Inferior struct {
	id       int
	pid      int
	state    State
	attached bool
	execPath string
	args     string

	breakpoints []Breakpoint

	elfSyms   *symbols.Table
	dwarfSyms *symbols.Table

	// All ptrace requests run as closures on a dedicated locked OS
	// thread; fc carries the closure, ec the result.
	fc chan func() error
	ec chan error

	// text performs the word-granular peek/poke used for breakpoint
	// patching. It is the inferior itself outside of tests.
	text textPatcher

	log *logrus.Entry
}

// New creates an inferior with no child process.
func New() *Inferior {
	inf := &Inferior{
		id:        int(nextID.Add(1) - 1),
		elfSyms:   symbols.NewTable(),
		dwarfSyms: symbols.NewTable(),
		fc:        make(chan func() error),
		ec:        make(chan error),
		log:       logrus.WithField("component", "inferior"),
	}
	inf.text = inf
	liveCount.Add(1)
	go ptraceRun(inf.fc, inf.ec)
	return inf
}

// ID returns the inferior's unique id.
func (inf *Inferior) ID() int { return inf.id }

// Pid returns the traced child's process id, or 0 when no child exists.
func (inf *Inferior) Pid() int { return inf.pid }

// State returns the cached lifecycle state. It reflects the kernel as of
// the last reconcile.
func (inf *Inferior) State() State { return inf.state }

// Attached reports whether the tracee was obtained by attaching to an
// existing process.
func (inf *Inferior) Attached() bool { return inf.attached }

// ExecPath returns the canonical path of the executable, or "" when none
// has been chosen.
func (inf *Inferior) ExecPath() string { return inf.execPath }

// Args returns the unparsed argument string for the next run.
func (inf *Inferior) Args() string { return inf.args }

// Symbols returns the inferior's ELF and DWARF symbol tables.
func (inf *Inferior) Symbols() (elfTab, dwarfTab *symbols.Table) {
	return inf.elfSyms, inf.dwarfSyms
}

// SetExecPath canonicalizes path, verifies it is executable, stores it,
// and rebuilds the symbol tables. An empty path clears the executable.
func (inf *Inferior) SetExecPath(path string) error {
	if path == "" {
		inf.execPath = ""
		inf.elfSyms = symbols.NewTable()
		inf.dwarfSyms = symbols.NewTable()
		return nil
	}

	newPath, err := paths.CanonicalPath(path)
	if err != nil {
		return err
	}
	if err := access(newPath, xOK); err != nil {
		return status.Errnof(status.NotExecutable, errnoOf(err), "file %.256q is not executable", path)
	}

	inf.execPath = newPath
	return inf.loadSymbols()
}

// SetArgs stores the unparsed argument string for the next run. An empty
// string clears it.
func (inf *Inferior) SetArgs(args string) {
	inf.args = args
}

// loadSymbols rebuilds both symbol tables from the current executable.
func (inf *Inferior) loadSymbols() error {
	elfTab, dwarfTab, err := symbols.Load(inf.execPath)
	if err != nil {
		return err
	}
	inf.elfSyms = elfTab
	inf.dwarfSyms = dwarfTab
	inf.log.WithFields(logrus.Fields{
		"exec":  inf.execPath,
		"elf":   elfTab.Len(),
		"dwarf": dwarfTab.Len(),
	}).Debug("symbol tables loaded")
	return nil
}

// ResolveSymbol looks a function name up, DWARF first, ELF second.
func (inf *Inferior) ResolveSymbol(name string) (uint64, error) {
	return symbols.Resolve(inf.dwarfSyms, inf.elfSyms, name)
}

// SetBreakpointAtFunction resolves name and sets a breakpoint at its
// address.
func (inf *Inferior) SetBreakpointAtFunction(name string) error {
	addr, err := inf.ResolveSymbol(name)
	if err != nil {
		return err
	}
	return inf.SetBreakpoint(uintptr(addr))
}

// Destroy releases the inferior: the child is detached from or killed (no
// zombies are left behind), the symbol tables are dropped, and the ptrace
// thread is released. Codes reporting that the child is already gone count
// as success.
func (inf *Inferior) Destroy() error {
	if err := inf.terminateOrDetach(); err != nil {
		return err
	}
	inf.elfSyms = nil
	inf.dwarfSyms = nil
	inf.execPath = ""
	inf.args = ""
	close(inf.fc)
	liveCount.Add(-1)
	return nil
}

// clearProcess resets the process-identity fields after the child is gone.
func (inf *Inferior) clearProcess() {
	inf.pid = 0
	inf.state = None
	inf.attached = false
}

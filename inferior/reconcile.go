// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/status"
)

// reconcile synchronizes the cached lifecycle state with the kernel's view
// of the child. It is the single source of truth for kernel-driven state
// transitions; outside it, state is set only by the spawn and attach
// sequences and cleared by Kill and Detach.
//
// The non-blocking variant peeks with WNOHANG. The blocking variant waits
// for the next stop and classifies it: a kernel-raised SIGTRAP whose rip-1
// matches a breakpoint record reports BreakpointHit, a kernel-raised
// SIGTRAP with no matching record reports success, and any other stop
// reports ProcStopped. Both reports are informational, not failures.
func (inf *Inferior) reconcile(blocking bool) error {
	if inf.pid <= 0 {
		return status.Msgf(status.InvalidState, "program is not being run")
	}

	options := unix.WNOHANG
	if blocking {
		options = 0
	}

	wpid, ws, err := inf.wait4(inf.pid, options)
	if err != nil {
		if err != unix.ECHILD {
			return status.Errnof(status.WaitpidFailed, errnoOf(err), "waitpid")
		}
		if killErr := unix.Kill(inf.pid, 0); killErr == nil {
			return status.Msgf(status.ProcNotAttached, "process %d exists but is not being traced", inf.pid)
		} else if killErr != unix.ESRCH {
			return status.Errnof(status.SystemError, errnoOf(killErr), "can't check process status")
		}
		pid := inf.pid
		inf.clearProcess()
		return status.Msgf(status.ProcNotFound, "process %d doesn't exist", pid)
	}

	if wpid == 0 {
		// No change in state.
		return nil
	}

	switch {
	case ws.Exited():
		pid := inf.pid
		inf.state = Exited
		inf.pid = 0
		inf.attached = false
		inf.log.WithField("pid", pid).Debug("child exited")
		return status.Msgf(status.ProcExited, "process %d exited with code %d", pid, ws.ExitStatus())

	case ws.Signaled():
		pid := inf.pid
		inf.state = Terminated
		inf.pid = 0
		inf.attached = false
		inf.log.WithField("pid", pid).Debug("child terminated by signal")
		return status.Msgf(status.ProcTerminated, "process %d terminated by signal %d", pid, ws.Signal())

	case ws.Stopped():
		inf.state = Stopped
		if !blocking {
			return nil
		}
		si, err := inf.ptraceGetSigInfo(inf.pid)
		if err != nil {
			return status.Errnof(status.PtraceError, errnoOf(err), "ptrace get siginfo")
		}
		var regs unix.PtraceRegs
		if err := inf.ptraceGetRegs(inf.pid, &regs); err != nil {
			return status.Errnof(status.PtraceGetRegsFailed, errnoOf(err), "ptrace get regs")
		}
		if si.Code != siKernel {
			return status.Msgf(status.ProcStopped, "program stopped at %#x", regs.Rip)
		}
		bp, idx := inf.findBreakpoint(uintptr(regs.Rip - 1))
		if bp == nil {
			// A kernel trap with no matching record: treat like any
			// other stop and leave the tracee where it is.
			return nil
		}
		return status.Msgf(status.BreakpointHit, "breakpoint %d at %#x", idx, bp.Addr)

	case ws.Continued():
		inf.state = Running
		return nil
	}

	return nil
}

// Reconcile refreshes the cached state without blocking and reports the
// observed transition, if any.
func (inf *Inferior) Reconcile() error {
	return inf.reconcile(false)
}

// validateStopped reconciles and then requires the child to be stopped.
func (inf *Inferior) validateStopped() error {
	if err := inf.reconcile(false); err != nil {
		return err
	}
	if inf.state != Stopped {
		if inf.state == Running {
			return status.Msgf(status.ProcRunning, "process %d is already running", inf.pid)
		}
		return status.Msgf(status.InvalidState, "process %d is not in a stopped state", inf.pid)
	}
	return nil
}

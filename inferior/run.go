// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/google/shlex"
	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/paths"
	"github.com/palepen/sylvan/status"
)

// buildArgv expands "<execPath> <args>" into an argv slice. Word splitting
// honors quotes and backslash escapes; command and process substitution
// are rejected rather than executed.
func (inf *Inferior) buildArgv() ([]string, error) {
	argv := []string{inf.execPath}
	if inf.args == "" {
		return argv, nil
	}
	if strings.Contains(inf.args, "`") || strings.Contains(inf.args, "$(") || strings.Contains(inf.args, "<(") || strings.Contains(inf.args, ">(") {
		return nil, status.Msgf(status.InvalidArgument, "argument string must not contain command substitution")
	}
	words, err := shlex.Split(inf.args)
	if err != nil {
		return nil, status.Msgf(status.InvalidArgument, "invalid arguments for child process: %v", err)
	}
	return append(argv, words...), nil
}

// Run spawns a new child under trace, replacing any prior one. The child
// is placed in its own process group so keyboard signals reach only the
// debugger, and it requests self-trace before exec. On return the tracee
// has been continued past the post-exec trap and the result of the next
// blocking reconcile is reported.
func (inf *Inferior) Run() error {
	if inf.execPath == "" {
		return status.Msgf(status.FileNotFound, "no executable path specified")
	}
	if err := access(inf.execPath, xOK); err != nil {
		return status.Errnof(status.NotExecutable, errnoOf(err), "file %q is not executable", inf.execPath)
	}

	if err := inf.Kill(); err != nil {
		return err
	}

	argv, err := inf.buildArgv()
	if err != nil {
		return err
	}

	// Ptrace in the attributes makes the child issue TRACEME before
	// exec; pre-exec failures travel back over the runtime's
	// close-on-exec pipe and surface as the StartProcess error.
	proc, err := inf.startProcess(inf.execPath, argv, &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys: &syscall.SysProcAttr{
			Ptrace:  true,
			Setpgid: true,
		},
	})
	if err != nil {
		return spawnError(err)
	}

	inf.log.WithField("pid", proc.Pid).Debug("child spawned")

	// Reap the automatic SIGTRAP that follows TRACEME+exec.
	_, ws, err := inf.wait4(proc.Pid, 0)
	if err != nil {
		return status.Errnof(status.WaitpidFailed, errnoOf(err), "waitpid")
	}
	if ws.Exited() {
		return status.Msgf(status.ProcChild, "child process exited with code %d", ws.ExitStatus())
	}

	inf.pid = proc.Pid
	inf.attached = false
	switch {
	case ws.Stopped():
		inf.state = Stopped
	case ws.Signaled():
		inf.state = Terminated
	case ws.Continued():
		inf.state = Running
	}

	// New address space: any prior int3 patches are gone.
	inf.clearPhysicalFlags()
	if err := inf.installAllLogical(); err != nil {
		return err
	}

	if err := inf.ptraceCont(inf.pid, 0); err != nil {
		return status.Errnof(status.PtraceContFailed, errnoOf(err), "ptrace cont")
	}
	return inf.reconcile(true)
}

// spawnError maps a StartProcess failure onto the taxonomy.
func spawnError(err error) error {
	errno := errnoOf(err)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return status.Msgf(status.FileNotFound, "executable file not found")
	case errno == unix.EACCES:
		return status.Errnof(status.NotExecutable, errno, "exec")
	case errno == unix.EAGAIN || errno == unix.ENOMEM:
		return status.Errnof(status.ForkFailed, errno, "fork")
	default:
		return status.Errnof(status.ExecFailed, errno, "exec %v", err)
	}
}

// Attach places an existing process under trace.
func (inf *Inferior) Attach(pid int) error {
	if err := unix.Kill(pid, 0); err != nil {
		if err == unix.ESRCH {
			return status.Msgf(status.ProcNotFound, "process %d does not exist", pid)
		}
		return status.Errnof(status.SystemError, errnoOf(err), "check process existence")
	}

	if err := inf.terminateOrDetach(); err != nil {
		return err
	}

	if err := inf.ptraceAttach(pid); err != nil {
		if err == unix.EPERM {
			return status.Msgf(status.PtraceAttachFailed, "permission denied to attach to process %d", pid)
		}
		if err == unix.ESRCH {
			return status.Msgf(status.ProcNotFound, "process %d does not exist", pid)
		}
		return status.Errnof(status.PtraceAttachFailed, errnoOf(err), "ptrace attach")
	}

	// Best-effort: the exe link can be unreadable for foreign binaries.
	path, _ := paths.RealPathOfPid(pid)

	_, ws, err := inf.wait4(pid, 0)
	if err != nil {
		if err == unix.ECHILD {
			return status.Msgf(status.ProcNotFound, "process %d disappeared during attach", pid)
		}
		return status.Errnof(status.WaitpidFailed, errnoOf(err), "waitpid")
	}

	switch {
	case ws.Stopped():
		inf.state = Stopped
	case ws.Continued():
		inf.state = Running
	case ws.Exited():
		return status.Msgf(status.ProcExited, "process %d exited during attach", pid)
	case ws.Signaled():
		return status.Msgf(status.ProcTerminated, "process %d terminated during attach", pid)
	}

	inf.pid = pid
	inf.attached = true
	inf.execPath = path
	inf.log.WithField("pid", pid).Debug("attached")

	if path != "" {
		if err := inf.loadSymbols(); err != nil {
			return err
		}
	}

	inf.clearPhysicalFlags()
	return inf.installAllLogical()
}

// Detach releases an attached tracee, restoring every patched byte first.
func (inf *Inferior) Detach() error {
	if !inf.attached {
		return status.Msgf(status.ProcNotAttached, "process is not being traced")
	}

	err := inf.reconcile(false)
	switch status.CodeOf(err) {
	case status.OK:
	case status.ProcExited, status.ProcTerminated:
		return nil
	default:
		return err
	}

	if err := inf.uninstallAll(); err != nil {
		return err
	}

	if err := inf.ptraceDetach(inf.pid); err != nil && err != unix.ESRCH {
		return status.Errnof(status.PtraceDetachFailed, errnoOf(err), "ptrace detach")
	}

	inf.log.WithField("pid", inf.pid).Debug("detached")
	inf.clearProcess()
	return nil
}

// Kill forcibly terminates and reaps the child. Killing an already-dead
// child succeeds.
func (inf *Inferior) Kill() error {
	if !inf.state.active() {
		return nil
	}

	if err := unix.Kill(inf.pid, unix.SIGKILL); err != nil {
		if err != unix.ESRCH {
			return status.Errnof(status.KillFailed, errnoOf(err), "kill")
		}
		inf.clearProcess()
		return nil
	}

	if _, _, err := inf.wait4(inf.pid, 0); err != nil {
		return status.Errnof(status.WaitpidFailed, errnoOf(err), "waitpid")
	}

	inf.log.WithField("pid", inf.pid).Debug("child killed")
	inf.clearProcess()
	return nil
}

// terminateOrDetach ends the association with any live child: detach when
// we attached, kill when we spawned. The child being gone already counts
// as success.
func (inf *Inferior) terminateOrDetach() error {
	if !inf.state.active() {
		return nil
	}

	var err error
	if inf.attached {
		err = inf.Detach()
	} else {
		err = inf.Kill()
	}

	switch status.CodeOf(err) {
	case status.OK, status.ProcNotFound, status.ProcExited, status.ProcTerminated:
		return nil
	}
	return err
}

// stepOverBreakpoint recovers from a breakpoint stop at the current
// instruction: rewind rip to the int3 address, lift the patch, step the
// original instruction, and re-install the patch. It reports
// BreakpointNotFound (without recording) when the stop was not one of
// ours, so callers fall through to a plain continue or step.
func (inf *Inferior) stepOverBreakpoint() error {
	var regs unix.PtraceRegs
	if err := inf.ptraceGetRegs(inf.pid, &regs); err != nil {
		return status.Errnof(status.PtraceGetRegsFailed, errnoOf(err), "ptrace get regs")
	}

	bp, _ := inf.findBreakpoint(uintptr(regs.Rip - 1))
	if bp == nil || !bp.EnabledPhysical {
		return status.New(status.BreakpointNotFound, "no breakpoint at current address")
	}

	// rip points at the byte after the int3 that fired.
	regs.Rip--
	if err := inf.ptraceSetRegs(inf.pid, &regs); err != nil {
		return status.Errnof(status.PtraceSetRegsFailed, errnoOf(err), "ptrace set regs")
	}

	if err := inf.uninstall(bp); err != nil {
		return err
	}

	if err := inf.ptraceSingleStep(inf.pid); err != nil {
		return status.Errnof(status.PtraceStepFailed, errnoOf(err), "ptrace single step")
	}

	if err := inf.reconcile(true); err != nil {
		switch status.CodeOf(err) {
		case status.ProcStopped, status.BreakpointHit:
			// Still alive; fall through and re-arm.
		default:
			return err
		}
	}

	return inf.install(bp)
}

// Continue resumes a stopped tracee and blocks until the next stop.
func (inf *Inferior) Continue() error {
	if err := inf.validateStopped(); err != nil {
		return err
	}

	if err := inf.stepOverBreakpoint(); err != nil && status.CodeOf(err) != status.BreakpointNotFound {
		return err
	}

	if err := inf.ptraceCont(inf.pid, 0); err != nil {
		return status.Errnof(status.PtraceContFailed, errnoOf(err), "ptrace cont")
	}

	return inf.reconcile(true)
}

// StepInstruction executes exactly one instruction. When the tracee is
// stopped on one of our breakpoints, the recovery helper has already
// performed the step.
func (inf *Inferior) StepInstruction() error {
	if err := inf.validateStopped(); err != nil {
		return err
	}

	err := inf.stepOverBreakpoint()
	if err == nil {
		return nil
	}
	if status.CodeOf(err) != status.BreakpointNotFound {
		return err
	}

	if err := inf.ptraceSingleStep(inf.pid); err != nil {
		return status.Errnof(status.PtraceStepFailed, errnoOf(err), "ptrace single step")
	}

	return inf.reconcile(true)
}

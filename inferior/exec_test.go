// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"debug/elf"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/status"
)

// mustPtrace skips the test when the environment forbids tracing (locked
// down Yama, seccomp sandboxes, missing CAP_SYS_PTRACE).
func mustPtrace(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}
	switch status.CodeOf(err) {
	case status.PtraceAttachFailed, status.ExecFailed, status.ForkFailed, status.PtraceError, status.SystemError:
		t.Skipf("ptrace unavailable here: %v", err)
	}
}

// TestRunToExit spawns /bin/true and drives it to completion.
func TestRunToExit(t *testing.T) {
	if _, err := os.Stat("/bin/true"); err != nil {
		t.Skip("/bin/true not present")
	}

	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	require.NoError(t, inf.SetExecPath("/bin/true"))

	err := inf.Run()
	mustPtrace(t, err)

	// Run continues past the exec trap; /bin/true has no breakpoints
	// set, so the next event is its exit.
	for status.CodeOf(err) == status.ProcStopped || status.CodeOf(err) == status.OK {
		if inf.State() == Exited {
			break
		}
		err = inf.Continue()
		mustPtrace(t, err)
	}

	assert.Equal(t, status.ProcExited, status.CodeOf(err))
	assert.Equal(t, Exited, inf.State())
	assert.Equal(t, 0, inf.Pid())
	assert.False(t, inf.Attached())
}

// TestBreakpointHitAndRerun arms a breakpoint at main.main of the test
// binary itself, runs to the trap, recovers past it, and then re-runs to
// show the breakpoint fires again without being re-set.
func TestBreakpointHitAndRerun(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	f, err := elf.Open(exe)
	if err != nil {
		t.Skipf("test binary not an ELF: %v", err)
	}
	typ := f.Type
	f.Close()
	if typ == elf.ET_DYN {
		t.Skip("test binary is position independent; link-time addresses don't match the load addresses")
	}

	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	require.NoError(t, inf.SetExecPath(exe))
	// The child is the test binary again; keep it from running any tests
	// once it is finally allowed past main.
	inf.SetArgs("-test.run ^$")

	addr, err := inf.ResolveSymbol("main.main")
	if err != nil {
		t.Skipf("main.main not resolvable in test binary: %v", err)
	}

	require.NoError(t, inf.SetBreakpoint(uintptr(addr)))

	err = inf.Run()
	mustPtrace(t, err)
	// The runtime of the child may field its own signals before reaching
	// main; continue through those stops until the trap fires.
	for status.CodeOf(err) == status.ProcStopped {
		err = inf.Continue()
		mustPtrace(t, err)
	}
	require.Equal(t, status.BreakpointHit, status.CodeOf(err), "run: %v", err)
	require.Equal(t, Stopped, inf.State())

	// The trap byte is installed and rip points just past it.
	var regs unix.PtraceRegs
	require.NoError(t, inf.GetRegs(&regs))
	assert.Equal(t, addr+1, regs.Rip)

	word, err := inf.GetMemory(uintptr(addr))
	require.NoError(t, err)
	assert.Equal(t, uint64(int3), word&0xFF)

	bps := inf.Breakpoints()
	require.Len(t, bps, 1)
	assert.True(t, bps[0].EnabledPhysical)
	assert.NotEqual(t, byte(int3), bps[0].OrigByte)

	// Stepping off the breakpoint lifts the patch, executes the original
	// instruction, and puts the patch back.
	require.NoError(t, inf.StepInstruction())
	require.Equal(t, Stopped, inf.State())

	word, err = inf.GetMemory(uintptr(addr))
	require.NoError(t, err)
	assert.Equal(t, uint64(int3), word&0xFF)
	assert.True(t, inf.Breakpoints()[0].EnabledPhysical)

	var after unix.PtraceRegs
	require.NoError(t, inf.GetRegs(&after))
	assert.NotEqual(t, uint64(addr), after.Rip)

	// Re-run without touching the table: the breakpoint must fire again.
	err = inf.Run()
	mustPtrace(t, err)
	for status.CodeOf(err) == status.ProcStopped {
		err = inf.Continue()
		mustPtrace(t, err)
	}
	require.Equal(t, status.BreakpointHit, status.CodeOf(err), "re-run: %v", err)

	require.NoError(t, inf.GetRegs(&regs))
	assert.Equal(t, addr+1, regs.Rip)

	bps = inf.Breakpoints()
	require.Len(t, bps, 1)
	assert.True(t, bps[0].EnabledLogical)
	assert.True(t, bps[0].EnabledPhysical)

	// Continuing from the hit recovers past the breakpoint (no re-trap)
	// and lets the child run to its exit.
	err = inf.Continue()
	mustPtrace(t, err)
	for status.CodeOf(err) == status.ProcStopped || status.CodeOf(err) == status.OK {
		if inf.State() == Exited {
			break
		}
		err = inf.Continue()
		mustPtrace(t, err)
	}
	assert.Equal(t, status.ProcExited, status.CodeOf(err))
	assert.Equal(t, Exited, inf.State())
	assert.Equal(t, 0, inf.Pid())
}

// TestAttachDetach traces an externally started sleeper and releases it
// again.
func TestAttachDetach(t *testing.T) {
	sleeper := exec.Command("/bin/sleep", "30")
	if err := sleeper.Start(); err != nil {
		t.Skipf("cannot start sleeper: %v", err)
	}
	defer func() {
		_ = sleeper.Process.Kill()
		_, _ = sleeper.Process.Wait()
	}()

	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.Attach(sleeper.Process.Pid)
	mustPtrace(t, err)
	require.NoError(t, err)

	assert.Equal(t, Stopped, inf.State())
	assert.True(t, inf.Attached())
	assert.Equal(t, sleeper.Process.Pid, inf.Pid())

	var regs unix.PtraceRegs
	require.NoError(t, inf.GetRegs(&regs))
	assert.NotZero(t, regs.Rip)

	// Writing back the same registers changes nothing.
	require.NoError(t, inf.SetRegs(&regs))
	var regs2 unix.PtraceRegs
	require.NoError(t, inf.GetRegs(&regs2))
	assert.Equal(t, regs, regs2)

	require.NoError(t, inf.Detach())
	assert.Equal(t, None, inf.State())
	assert.False(t, inf.Attached())
	assert.Equal(t, 0, inf.Pid())

	// The sleeper keeps running once released.
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, unix.Kill(sleeper.Process.Pid, 0))
}

// TestAttachMissingProcess attaches to a pid that cannot exist.
func TestAttachMissingProcess(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.Attach(1 << 22)
	require.Error(t, err)
	assert.Equal(t, status.ProcNotFound, status.CodeOf(err))
}

// TestMemoryRoundTrip writes into a stopped tracee's stack and reads the
// bytes back, including a write that is not a multiple of the word size.
func TestMemoryRoundTrip(t *testing.T) {
	sleeper := exec.Command("/bin/sleep", "30")
	if err := sleeper.Start(); err != nil {
		t.Skipf("cannot start sleeper: %v", err)
	}
	defer func() {
		_ = sleeper.Process.Kill()
		_, _ = sleeper.Process.Wait()
	}()

	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.Attach(sleeper.Process.Pid)
	mustPtrace(t, err)
	require.NoError(t, err)
	defer func() { _ = inf.Kill() }()

	var regs unix.PtraceRegs
	require.NoError(t, inf.GetRegs(&regs))
	addr := uintptr(regs.Rsp) - 64

	before, err := inf.GetMemory(addr)
	require.NoError(t, err)

	// A 3-byte write preserves the upper five bytes of the word.
	require.NoError(t, inf.SetMemory(addr, []byte{0x11, 0x22, 0x33}))

	after, err := inf.GetMemory(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x332211), after&0xFFFFFF)
	assert.Equal(t, before>>24, after>>24)

	// The written bytes read back unchanged.
	got, err := inf.GetMemoryRange(addr, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, got)
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"errors"
	"os"
	"runtime"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const xOK = unix.X_OK

func access(path string, mode uint32) error {
	return unix.Access(path, mode)
}

func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

// ptraceRun services one inferior's trace-control requests for its whole
// lifetime. The kernel ties a tracee to the thread that attached or
// spawned it, so the goroutine pins itself to an OS thread and every
// request arrives here as a closure on fc, with its error going back on
// ec. Unbuffered channels keep each result paired with the goroutine that
// submitted the closure.
func ptraceRun(fc chan func() error, ec chan error) {
	if cap(fc) != 0 || cap(ec) != 0 {
		panic("ptraceRun requires unbuffered channels")
	}
	runtime.LockOSThread()
	for f := range fc {
		ec <- f()
	}
}

// call runs f on the ptrace thread and returns its error.
func (inf *Inferior) call(f func() error) error {
	inf.fc <- f
	return <-inf.ec
}

func (inf *Inferior) startProcess(name string, argv []string, attr *os.ProcAttr) (proc *os.Process, err error) {
	inf.fc <- func() error {
		var err1 error
		proc, err1 = os.StartProcess(name, argv, attr)
		return err1
	}
	return proc, <-inf.ec
}

func (inf *Inferior) ptraceAttach(pid int) error {
	return inf.call(func() error { return unix.PtraceAttach(pid) })
}

func (inf *Inferior) ptraceDetach(pid int) error {
	return inf.call(func() error { return unix.PtraceDetach(pid) })
}

func (inf *Inferior) ptraceCont(pid int, signal int) error {
	return inf.call(func() error { return unix.PtraceCont(pid, signal) })
}

func (inf *Inferior) ptraceSingleStep(pid int) error {
	return inf.call(func() error { return unix.PtraceSingleStep(pid) })
}

func (inf *Inferior) ptraceGetRegs(pid int, regsout *unix.PtraceRegs) error {
	return inf.call(func() error { return unix.PtraceGetRegs(pid, regsout) })
}

func (inf *Inferior) ptraceSetRegs(pid int, regs *unix.PtraceRegs) error {
	return inf.call(func() error { return unix.PtraceSetRegs(pid, regs) })
}

func (inf *Inferior) ptracePeekText(pid int, addr uintptr, out []byte) error {
	return inf.call(func() error {
		n, err := unix.PtracePeekText(pid, addr, out)
		if err != nil {
			return err
		}
		if n != len(out) {
			return unix.EIO
		}
		return nil
	})
}

func (inf *Inferior) ptracePokeText(pid int, addr uintptr, data []byte) error {
	return inf.call(func() error {
		n, err := unix.PtracePokeText(pid, addr, data)
		if err != nil {
			return err
		}
		if n != len(data) {
			return unix.EIO
		}
		return nil
	})
}

func (inf *Inferior) ptracePeekData(pid int, addr uintptr, out []byte) error {
	return inf.call(func() error {
		n, err := unix.PtracePeekData(pid, addr, out)
		if err != nil {
			return err
		}
		if n != len(out) {
			return unix.EIO
		}
		return nil
	})
}

func (inf *Inferior) ptracePokeData(pid int, addr uintptr, data []byte) error {
	return inf.call(func() error {
		n, err := unix.PtracePokeData(pid, addr, data)
		if err != nil {
			return err
		}
		if n != len(data) {
			return unix.EIO
		}
		return nil
	})
}

// siginfo mirrors the head of the kernel's siginfo_t; only the first three
// fields are consulted. The tail pads the struct out to the full 128 bytes
// the kernel writes.
type siginfo struct {
	Signo int32
	Errno int32
	Code  int32
	_     [29]int32
}

// siKernel is the si_code the kernel uses for traps it raised itself,
// which is how an int3 stop is told apart from other SIGTRAPs.
const siKernel = 0x80

// ptraceGetSigInfo fetches the pending signal details for a stopped
// tracee. x/sys/unix carries no wrapper for PTRACE_GETSIGINFO, so this is
// a raw ptrace call.
func (inf *Inferior) ptraceGetSigInfo(pid int) (*siginfo, error) {
	var si siginfo
	err := inf.call(func() error {
		_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETSIGINFO,
			uintptr(pid), 0, uintptr(unsafe.Pointer(&si)), 0, 0)
		if errno != 0 {
			return errno
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &si, nil
}

// wait4 performs one waitpid on the ptrace thread, retrying on EINTR.
func (inf *Inferior) wait4(pid int, options int) (wpid int, ws unix.WaitStatus, err error) {
	err = inf.call(func() error {
		for {
			var err1 error
			wpid, err1 = unix.Wait4(pid, &ws, options, nil)
			if err1 == unix.EINTR {
				continue
			}
			return err1
		}
	})
	return wpid, ws, err
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package status implements the debugger's error channel: a Code taxonomy
// shared by every subsystem, a structured Error carrying the code and the
// OS errno alongside a human-readable message, and a process-wide record of
// the most recent failure, readable via Last.
//
// Each constructor records the error it builds and returns it, so call
// sites propagate with a single statement:
//
//	return status.Msgf(status.ProcNotFound, "process %d doesn't exist", pid)
//
// Wrapping layers must not re-record: the record set at the origin wins.
package status

import (
	"fmt"
	"sync"
	"syscall"
)

// Code classifies every failure (and a few informational results) the
// debugger can produce. OK is zero.
type Code int

const (
	OK Code = iota

	// Generic.
	Failure
	OutOfMemory
	InvalidArgument
	InvalidState
	FileNotFound
	NotExecutable

	// Process.
	ProcNotFound
	ProcNotAttached
	ProcAlreadyAttached
	ProcExited
	ProcTerminated
	ProcRunning
	ProcStopped
	ProcZombie
	ProcChild

	// System calls.
	SystemError
	ForkFailed
	PipeFailed
	WaitpidFailed
	ExecFailed
	KillFailed

	// Trace.
	PtraceError
	PtraceAttachFailed
	PtraceDetachFailed
	PtraceContFailed
	PtraceStepFailed
	PtraceGetRegsFailed
	PtraceSetRegsFailed
	PtracePeekTextFailed
	PtracePokeTextFailed
	PtracePeekDataFailed
	PtracePokeDataFailed

	// Breakpoint.
	BreakpointAlreadyExists
	BreakpointNotFound
	BreakpointLimitReached
	BreakpointHit

	// Symbol.
	ElfFailed
	DwarfNotFound
	SymbolNotFound
)

// String returns the canonical text for the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "Ok"
	case Failure:
		return "Something went wrong"
	case OutOfMemory:
		return "Out of memory"
	case InvalidArgument:
		return "Invalid argument"
	case InvalidState:
		return "Invalid operation in current state"
	case FileNotFound:
		return "File not found or not accessible"
	case NotExecutable:
		return "File is not executable"
	case ProcNotFound:
		return "Process does not exist"
	case ProcNotAttached:
		return "Process is not being traced"
	case ProcAlreadyAttached:
		return "Process is already being traced"
	case ProcExited:
		return "Process has exited normally"
	case ProcTerminated:
		return "Process was terminated by signal"
	case ProcRunning:
		return "Process is running (not stopped)"
	case ProcStopped:
		return "Process is stopped"
	case ProcZombie:
		return "Process is in zombie state"
	case ProcChild:
		return "Error in child process"
	case SystemError:
		return "System error"
	case ForkFailed:
		return "Fork failed"
	case PipeFailed:
		return "Pipe creation failed"
	case WaitpidFailed:
		return "Wait for process failed"
	case ExecFailed:
		return "Exec failed"
	case KillFailed:
		return "Kill signal failed"
	case PtraceError:
		return "Ptrace operation failed"
	case PtraceAttachFailed:
		return "Could not attach to process"
	case PtraceDetachFailed:
		return "Could not detach from process"
	case PtraceContFailed:
		return "Could not continue process"
	case PtraceStepFailed:
		return "Single step failed"
	case PtraceGetRegsFailed:
		return "Get registers failed"
	case PtraceSetRegsFailed:
		return "Set registers failed"
	case PtracePeekTextFailed:
		return "Read of text segment failed"
	case PtracePokeTextFailed:
		return "Write to text segment failed"
	case PtracePeekDataFailed:
		return "Read of data segment failed"
	case PtracePokeDataFailed:
		return "Write to data segment failed"
	case BreakpointAlreadyExists:
		return "Breakpoint already exists at address"
	case BreakpointNotFound:
		return "No breakpoint at address"
	case BreakpointLimitReached:
		return "Breakpoint limit reached"
	case BreakpointHit:
		return "Breakpoint hit"
	case ElfFailed:
		return "Could not load ELF symbols"
	case DwarfNotFound:
		return "No DWARF debug information"
	case SymbolNotFound:
		return "Symbol not found"
	}
	return "Unknown error"
}

// Error carries the result code of a failed (or informational) operation,
// the OS errno observed at the failure site, and a formatted message.
type Error struct {
	Code    Code
	Errno   syscall.Errno
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is reports whether target is an *Error with the same code, so call sites
// can test results with errors.Is(err, status.New(status.ProcExited, "")).
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the code from an error. A nil error is OK; an error
// produced outside this package maps to Failure.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return Failure
}

// New builds an Error without touching the last-error record. It is for
// internal signalling (e.g. "no breakpoint here") that never reaches the
// user directly.
func New(c Code, format string, args ...interface{}) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(format, args...)}
}

var (
	lastMu   sync.Mutex
	lastErr  Error
	lastText = OK.String()
)

func record(e *Error) *Error {
	lastMu.Lock()
	lastErr = *e
	lastText = e.Message
	lastMu.Unlock()
	return e
}

// SetCode records and returns an error whose message is the canonical text
// of the code.
func SetCode(c Code) *Error {
	return record(&Error{Code: c, Message: c.String()})
}

// SetErrno records and returns an error whose message is the OS-level
// string for errno.
func SetErrno(c Code, errno syscall.Errno) *Error {
	return record(&Error{Code: c, Errno: errno, Message: errno.Error()})
}

// Errnof records and returns an error whose message is the formatted
// prefix followed by the OS-level string for errno.
func Errnof(c Code, errno syscall.Errno, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if errno != 0 {
		msg += ": " + errno.Error()
	}
	return record(&Error{Code: c, Errno: errno, Message: msg})
}

// Msgf records and returns an error with a purely formatted message.
func Msgf(c Code, format string, args ...interface{}) *Error {
	return record(&Error{Code: c, Message: fmt.Sprintf(format, args...)})
}

// Last returns the message of the most recently recorded error.
func Last() string {
	lastMu.Lock()
	defer lastMu.Unlock()
	return lastText
}

// LastError returns a copy of the most recently recorded error record.
func LastError() Error {
	lastMu.Lock()
	defer lastMu.Unlock()
	return lastErr
}

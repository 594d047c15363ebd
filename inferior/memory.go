// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"encoding/binary"

	"github.com/palepen/sylvan/status"
)

func leUint64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }
func lePutUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// mergeTail overlays the 1..7 bytes of tail onto the low end of current,
// preserving the remaining high bytes.
func mergeTail(current uint64, tail []byte) uint64 {
	var buf [8]byte
	copy(buf[:], tail)
	mask := uint64(1)<<(uint(len(tail))*8) - 1
	return current&^mask | leUint64(buf[:])&mask
}

// GetMemory reads one native word (8 bytes) at addr from the tracee.
func (inf *Inferior) GetMemory(addr uintptr) (uint64, error) {
	if inf.pid <= 0 {
		return 0, status.Msgf(status.InvalidState, "program is not being run")
	}

	var buf [8]byte
	if err := inf.ptracePeekData(inf.pid, addr, buf[:]); err != nil {
		return 0, status.Errnof(status.PtracePeekDataFailed, errnoOf(err), "cannot read address %#x", addr)
	}
	return leUint64(buf[:]), nil
}

// GetMemoryRange reads n bytes starting at addr, one native word at a
// time.
func (inf *Inferior) GetMemoryRange(addr uintptr, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, 0, n+7)
	for read := 0; read < n; read += 8 {
		word, err := inf.GetMemory(addr + uintptr(read))
		if err != nil {
			return nil, err
		}
		var w [8]byte
		lePutUint64(w[:], word)
		buf = append(buf, w[:]...)
	}
	return buf[:n], nil
}

// SetMemory writes len(data) bytes at addr into the tracee. Full words are
// written directly; a trailing 1..7-byte remainder is merged into the
// existing word so the surrounding bytes are preserved.
func (inf *Inferior) SetMemory(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if addr == 0 {
		return status.Msgf(status.InvalidArgument, "invalid address %#x", addr)
	}
	if inf.pid <= 0 {
		return status.Msgf(status.InvalidState, "program is not being run")
	}

	offset := 0
	for offset+8 <= len(data) {
		if err := inf.ptracePokeData(inf.pid, addr+uintptr(offset), data[offset:offset+8]); err != nil {
			return status.Errnof(status.PtracePokeDataFailed, errnoOf(err), "cannot write at %#x", addr+uintptr(offset))
		}
		offset += 8
	}

	if offset < len(data) {
		var cur [8]byte
		if err := inf.ptracePeekData(inf.pid, addr+uintptr(offset), cur[:]); err != nil {
			return status.Errnof(status.PtracePokeDataFailed, errnoOf(err), "cannot write at %#x", addr+uintptr(offset))
		}

		var out [8]byte
		lePutUint64(out[:], mergeTail(leUint64(cur[:]), data[offset:]))
		if err := inf.ptracePokeData(inf.pid, addr+uintptr(offset), out[:]); err != nil {
			return status.Errnof(status.PtracePokeDataFailed, errnoOf(err), "cannot write at %#x", addr+uintptr(offset))
		}
	}

	return nil
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"debug/elf"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palepen/sylvan/status"
)

// A classic prologue: push rbp; mov rbp, rsp; nop; ret.
var prologue = []byte{0x55, 0x48, 0x89, 0xE5, 0x90, 0xC3}

func TestDecodePrologue(t *testing.T) {
	insts := decode(prologue, 0x401000)
	require.Len(t, insts, 4)

	assert.Equal(t, uint64(0x401000), insts[0].Addr)
	assert.Equal(t, "55", insts[0].Opcodes)
	assert.Contains(t, strings.ToLower(insts[0].Text), "push")

	assert.Equal(t, uint64(0x401001), insts[1].Addr)
	assert.Equal(t, "48 89 E5", insts[1].Opcodes)
	assert.Contains(t, strings.ToLower(insts[1].Text), "mov")

	assert.Equal(t, uint64(0x401004), insts[2].Addr)
	assert.Contains(t, strings.ToLower(insts[2].Text), "nop")

	assert.Equal(t, uint64(0x401005), insts[3].Addr)
	assert.Contains(t, strings.ToLower(insts[3].Text), "ret")
}

func TestDecodeAdvancesByInstructionLength(t *testing.T) {
	insts := decode(prologue, 0)
	var total int
	for _, in := range insts {
		total += len(strings.Split(in.Opcodes, " "))
	}
	assert.Equal(t, len(prologue), total)
}

func TestDecodeStopsOnBadBytes(t *testing.T) {
	buf := append([]byte{0x90}, 0x06) // nop, then an invalid 64-bit opcode
	insts := decode(buf, 0)
	require.Len(t, insts, 1)
	assert.Contains(t, strings.ToLower(insts[0].Text), "nop")
}

func TestRangeArgumentChecks(t *testing.T) {
	_, err := Range("", 0x1000, 0x2000)
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.CodeOf(err))

	_, err = Range("/bin/true", 0x2000, 0x1000)
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.CodeOf(err))
}

func TestRangeMissingFile(t *testing.T) {
	_, err := Range("/no/such/file", 0x1000, 0x2000)
	require.Error(t, err)
	assert.Equal(t, status.ElfFailed, status.CodeOf(err))
}

func TestFileRangeAgainstSelf(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	f, err := elf.Open(exe)
	if err != nil {
		t.Skipf("test binary not an ELF: %v", err)
	}
	defer f.Close()

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Filesz == 0 {
			continue
		}
		off, max, err := fileRange(f, p.Vaddr)
		require.NoError(t, err)
		assert.Equal(t, p.Off, off)
		assert.Equal(t, p.Filesz, max)

		// Part way into the segment.
		if p.Filesz > 16 {
			off, max, err = fileRange(f, p.Vaddr+16)
			require.NoError(t, err)
			assert.Equal(t, p.Off+16, off)
			assert.Equal(t, p.Filesz-16, max)
		}
		break
	}
}

func TestFileRangeUnmappedAddress(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	f, err := elf.Open(exe)
	if err != nil {
		t.Skipf("test binary not an ELF: %v", err)
	}
	defer f.Close()

	_, _, err = fileRange(f, 0xdead00000000)
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.CodeOf(err))
}

func TestFunctionMissingSymbol(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	_, err = Function(exe, "definitely_not_a_function")
	require.Error(t, err)
	code := status.CodeOf(err)
	if code != status.SymbolNotFound && code != status.ElfFailed {
		t.Errorf("unexpected code %v", code)
	}
}

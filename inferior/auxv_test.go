// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auxvBytes(pairs ...[2]uint64) []byte {
	buf := make([]byte, 0, len(pairs)*16)
	for _, p := range pairs {
		var entry [16]byte
		binary.LittleEndian.PutUint64(entry[:8], p[0])
		binary.LittleEndian.PutUint64(entry[8:], p[1])
		buf = append(buf, entry[:]...)
	}
	return buf
}

func TestParseAuxv(t *testing.T) {
	data := auxvBytes(
		[2]uint64{AuxPagesz, 4096},
		[2]uint64{AuxEntry, 0x401000},
		[2]uint64{AuxNull, 0},
		[2]uint64{AuxUID, 1000}, // past the terminator, must be ignored
	)

	entries := ParseAuxv(data)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(AuxPagesz), entries[0].Type)
	assert.Equal(t, uint64(4096), entries[0].Value)
	assert.Equal(t, uint64(AuxEntry), entries[1].Type)
	assert.Equal(t, uint64(0x401000), entries[1].Value)
}

func TestParseAuxvTruncated(t *testing.T) {
	data := auxvBytes([2]uint64{AuxPagesz, 4096})
	// Chop the last entry in half: the partial pair is dropped.
	entries := ParseAuxv(data[:12])
	assert.Empty(t, entries)
}

func TestParseAuxvEmpty(t *testing.T) {
	assert.Empty(t, ParseAuxv(nil))
}

func TestAuxvTypeName(t *testing.T) {
	assert.Equal(t, "AT_PAGESZ", AuxvTypeName(AuxPagesz))
	assert.Equal(t, "AT_EXECFN", AuxvTypeName(AuxExecFn))
	assert.Equal(t, "AT_UNKNOWN", AuxvTypeName(0xffff))
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeTail(t *testing.T) {
	tests := []struct {
		name    string
		current uint64
		tail    []byte
		want    uint64
	}{
		{
			name:    "three bytes",
			current: 0x8877665544332211,
			tail:    []byte{0x11, 0x22, 0x33},
			want:    0x8877665544332211&^uint64(0xFFFFFF) | 0x332211,
		},
		{
			name:    "one byte",
			current: 0xFFFFFFFFFFFFFFFF,
			tail:    []byte{0x00},
			want:    0xFFFFFFFFFFFFFF00,
		},
		{
			name:    "seven bytes",
			current: 0xAA00000000000000,
			tail:    []byte{1, 2, 3, 4, 5, 6, 7},
			want:    0xAA07060504030201,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeTail(tt.current, tt.tail))
		})
	}
}

// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/palepen/sylvan/status"
)

// Auxiliary vector entry types, as passed by the kernel at process
// startup.
const (
	AuxNull          = 0
	AuxIgnore        = 1
	AuxExecFd        = 2
	AuxPhdr          = 3
	AuxPhent         = 4
	AuxPhnum         = 5
	AuxPagesz        = 6
	AuxBase          = 7
	AuxFlags         = 8
	AuxEntry         = 9
	AuxNotELF        = 10
	AuxUID           = 11
	AuxEUID          = 12
	AuxGID           = 13
	AuxEGID          = 14
	AuxPlatform      = 15
	AuxHwcap         = 16
	AuxClktck        = 17
	AuxSecure        = 23
	AuxBasePlatform  = 24
	AuxRandom        = 25
	AuxHwcap2        = 26
	AuxExecFn        = 31
	AuxSysinfoEhdr   = 33
	AuxMinSigstksz   = 51
)

// AuxvEntry is one (type, value) pair from the auxiliary vector.
type AuxvEntry struct {
	Type  uint64
	Value uint64
}

var auxvNames = map[uint64]string{
	AuxNull:         "AT_NULL",
	AuxIgnore:       "AT_IGNORE",
	AuxExecFd:       "AT_EXECFD",
	AuxPhdr:         "AT_PHDR",
	AuxPhent:        "AT_PHENT",
	AuxPhnum:        "AT_PHNUM",
	AuxPagesz:       "AT_PAGESZ",
	AuxBase:         "AT_BASE",
	AuxFlags:        "AT_FLAGS",
	AuxEntry:        "AT_ENTRY",
	AuxNotELF:       "AT_NOTELF",
	AuxUID:          "AT_UID",
	AuxEUID:         "AT_EUID",
	AuxGID:          "AT_GID",
	AuxEGID:         "AT_EGID",
	AuxPlatform:     "AT_PLATFORM",
	AuxHwcap:        "AT_HWCAP",
	AuxClktck:       "AT_CLKTCK",
	AuxSecure:       "AT_SECURE",
	AuxBasePlatform: "AT_BASE_PLATFORM",
	AuxRandom:       "AT_RANDOM",
	AuxHwcap2:       "AT_HWCAP2",
	AuxExecFn:       "AT_EXECFN",
	AuxSysinfoEhdr:  "AT_SYSINFO_EHDR",
	AuxMinSigstksz:  "AT_MINSIGSTKSZ",
}

// AuxvTypeName returns the conventional name of an auxv entry type.
func AuxvTypeName(t uint64) string {
	if name, ok := auxvNames[t]; ok {
		return name
	}
	return "AT_UNKNOWN"
}

// ReadAuxv reads the whole auxiliary vector of the tracee from /proc.
func (inf *Inferior) ReadAuxv() ([]byte, error) {
	if inf.pid <= 0 {
		return nil, status.Msgf(status.InvalidState, "program is not being run")
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/auxv", inf.pid))
	if err != nil {
		return nil, status.Errnof(status.SystemError, errnoOf(err), "read auxv of process %d", inf.pid)
	}
	return data, nil
}

// ParseAuxv decodes raw auxv bytes into (type, value) pairs, stopping at
// the AT_NULL terminator or the end of data.
func ParseAuxv(data []byte) []AuxvEntry {
	var entries []AuxvEntry
	for off := 0; off+16 <= len(data); off += 16 {
		typ := binary.LittleEndian.Uint64(data[off:])
		if typ == AuxNull {
			break
		}
		entries = append(entries, AuxvEntry{
			Type:  typ,
			Value: binary.LittleEndian.Uint64(data[off+8:]),
		})
	}
	return entries
}

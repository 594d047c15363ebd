// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux && amd64

package inferior

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palepen/sylvan/status"
)

func TestNewAssignsUniqueIDs(t *testing.T) {
	a := New()
	b := New()
	t.Cleanup(func() {
		_ = a.Destroy()
		_ = b.Destroy()
	})

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Greater(t, b.ID(), a.ID())
}

func TestCountTracksLiveInferiors(t *testing.T) {
	before := Count()
	inf := New()
	assert.Equal(t, before+1, Count())
	require.NoError(t, inf.Destroy())
	assert.Equal(t, before, Count())
}

func TestNewInferiorHasNoProcess(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	assert.Equal(t, None, inf.State())
	assert.Equal(t, 0, inf.Pid())
	assert.False(t, inf.Attached())
	assert.Empty(t, inf.ExecPath())
}

func TestSetArgs(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	inf.SetArgs("-l '/tmp/some dir'")
	assert.Equal(t, "-l '/tmp/some dir'", inf.Args())

	inf.SetArgs("")
	assert.Empty(t, inf.Args())
}

func TestSetExecPathMissingFile(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.SetExecPath("/no/such/binary/anywhere")
	require.Error(t, err)
	assert.Equal(t, status.FileNotFound, status.CodeOf(err))
}

func TestSetExecPathNotExecutable(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0o644))

	err := inf.SetExecPath(path)
	require.Error(t, err)
	assert.Equal(t, status.NotExecutable, status.CodeOf(err))
}

func TestSetExecPathLoadsSymbols(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	if err := inf.SetExecPath("/bin/true"); err != nil {
		t.Skipf("/bin/true not usable: %v", err)
	}
	assert.NotEmpty(t, inf.ExecPath())

	elfTab, dwarfTab := inf.Symbols()
	require.NotNil(t, elfTab)
	require.NotNil(t, dwarfTab)
}

func TestBuildArgv(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })
	inf.execPath = "/bin/echo"

	tests := []struct {
		name string
		args string
		want []string
	}{
		{"empty", "", []string{"/bin/echo"}},
		{"plain", "one two", []string{"/bin/echo", "one", "two"}},
		{"single quotes", "'a b' c", []string{"/bin/echo", "a b", "c"}},
		{"double quotes", `"x y"`, []string{"/bin/echo", "x y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf.args = tt.args
			got, err := inf.buildArgv()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildArgvRejectsCommandSubstitution(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })
	inf.execPath = "/bin/echo"

	for _, args := range []string{"`id`", "$(id)", "a <(id)", "a >(id)"} {
		inf.args = args
		_, err := inf.buildArgv()
		require.Error(t, err, "args %q", args)
		assert.Equal(t, status.InvalidArgument, status.CodeOf(err))
	}
}

func TestRunWithoutExecPath(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.Run()
	require.Error(t, err)
	assert.Equal(t, status.FileNotFound, status.CodeOf(err))
}

func TestContinueWithoutProcess(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.Continue()
	require.Error(t, err)
	assert.Equal(t, status.InvalidState, status.CodeOf(err))
}

func TestDetachWhenNotAttached(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.Detach()
	require.Error(t, err)
	assert.Equal(t, status.ProcNotAttached, status.CodeOf(err))
}

func TestKillDeadChildIsOK(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	assert.NoError(t, inf.Kill())
}

func TestGetMemoryWithoutProcess(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	_, err := inf.GetMemory(0x1000)
	require.Error(t, err)
	assert.Equal(t, status.InvalidState, status.CodeOf(err))
}

func TestSetMemoryZeroLength(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	assert.NoError(t, inf.SetMemory(0x1000, nil))
}

func TestSetMemoryNullAddress(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.SetMemory(0, []byte{1})
	require.Error(t, err)
	assert.Equal(t, status.InvalidArgument, status.CodeOf(err))
}

func TestSetBreakpointAtFunctionUnknownSymbol(t *testing.T) {
	inf := New()
	t.Cleanup(func() { _ = inf.Destroy() })

	err := inf.SetBreakpointAtFunction("no_such_function")
	require.Error(t, err)
	assert.Equal(t, status.SymbolNotFound, status.CodeOf(err))
}

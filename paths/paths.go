// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package paths canonicalizes filesystem paths for the debugger: realpath
// resolution, $PATH command lookup, and the executable path of a running
// pid via /proc.
package paths

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/palepen/sylvan/status"
)

func errnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return 0
}

// RealPath resolves path to an absolute path with all symlinks expanded.
// A path that does not exist yields FileNotFound.
func RealPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", status.SetCode(status.FileNotFound)
		}
		return "", status.Errnof(status.SystemError, errnoOf(err), "real path %s", path)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", status.Errnof(status.SystemError, errnoOf(err), "real path %s", path)
	}
	return abs, nil
}

// FindInPath walks the colon-separated $PATH entries and returns the first
// <dir>/<command> that is executable.
func FindInPath(command string) (string, error) {
	path := os.Getenv("PATH")
	if path == "" {
		return "", status.SetCode(status.FileNotFound)
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, command)
		if unix.Access(candidate, unix.X_OK) == nil {
			return candidate, nil
		}
	}
	return "", status.SetCode(status.FileNotFound)
}

// CanonicalPath resolves input as a real path, falling back to a $PATH
// lookup when the path does not exist as given.
func CanonicalPath(input string) (string, error) {
	path, err := RealPath(input)
	if err == nil {
		return path, nil
	}
	if status.CodeOf(err) != status.FileNotFound {
		return "", err
	}
	return FindInPath(input)
}

// RealPathOfPid returns the canonical path of the executable behind pid.
func RealPathOfPid(pid int) (string, error) {
	return RealPath(fmt.Sprintf("/proc/%d/exe", pid))
}

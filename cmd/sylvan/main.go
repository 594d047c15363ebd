// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sylvan is an interactive user-space debugger for x86-64 ELF executables
// on Linux. It spawns or attaches to a target process, sets software
// breakpoints, steps instructions, and inspects registers and memory.
//
// Run "sylvan --help" for the command-line options and "help" at the
// prompt for the interactive commands.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/palepen/sylvan/inferior"
	"github.com/palepen/sylvan/status"
)

var (
	flagExec     string
	flagArgs     string
	flagPid      int
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "sylvan [flags] [program]",
	Short: "a user-space debugger for x86-64 ELF executables",
	Long: `Sylvan is an interactive user-space debugger for x86-64 ELF executables.

It can spawn a program under trace or attach to a running process, set
software breakpoints, single-step, and inspect registers and memory.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.Flags().StringVar(&flagExec, "exec", "", "executable to debug")
	rootCmd.Flags().StringVar(&flagArgs, "args", "", "argument string for the program")
	rootCmd.Flags().IntVar(&flagPid, "pid", 0, "attach to a running process")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "warning", "log level (debug, info, warning, error)")
}

func runRoot(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(flagLogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q", flagLogLevel)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	if flagExec != "" && flagPid != 0 {
		return fmt.Errorf("--exec and --pid are mutually exclusive")
	}
	if len(args) == 1 && flagExec == "" {
		flagExec = args[0]
	}

	inf := inferior.New()
	defer func() {
		if err := inf.Destroy(); err != nil {
			logrus.WithError(err).Warn("destroying inferior")
		}
	}()

	if flagExec != "" {
		if err := inf.SetExecPath(flagExec); err != nil {
			return fmt.Errorf("%s", status.Last())
		}
	}
	if flagArgs != "" {
		inf.SetArgs(flagArgs)
	}
	if flagPid != 0 {
		if err := inf.Attach(flagPid); err != nil {
			return fmt.Errorf("%s", status.Last())
		}
		fmt.Printf("attached to process %d\n", flagPid)
	}

	return runShell(inf)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sylvan: %v\n", err)
		os.Exit(1)
	}
}

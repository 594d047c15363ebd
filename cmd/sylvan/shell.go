// Copyright 2025 The Sylvan Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/palepen/sylvan/inferior"
	"github.com/palepen/sylvan/status"
)

// interrupted is set by SIGINT and observed only by the command loop; an
// in-flight operation is never aborted.
var interrupted atomic.Bool

// session is the state of one interactive debugging session.
type session struct {
	inf  *inferior.Inferior
	out  io.Writer
	quit bool
}

// command is one entry in the shell's registry.
type command struct {
	name    string
	summary string
	usage   string
	run     func(s *session, args []string) error
}

// registry maps command names to handlers; shorthand names resolve
// through aliases first. It is populated in commands.go.
var registry = map[string]*command{}

// aliases maps shorthand names onto registry entries.
var aliases = map[string]string{
	"c":    "continue",
	"si":   "stepinst",
	"r":    "run",
	"b":    "breakpoint",
	"d":    "delete",
	"i":    "info",
	"x":    "memory",
	"dis":  "disassemble",
	"sym":  "symbol",
	"q":    "quit",
	"exit": "quit",
	"reg":  "register",
}

func register(c *command) {
	registry[c.name] = c
}

// lookupCommand resolves a possibly aliased command name.
func lookupCommand(name string) (*command, bool) {
	if target, ok := aliases[name]; ok {
		name = target
	}
	c, ok := registry[name]
	return c, ok
}

// dispatch parses one input line and runs the matching command. A failed
// command prints the structured last error.
func dispatch(s *session, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	cmd, ok := lookupCommand(fields[0])
	if !ok {
		fmt.Fprintf(s.out, "undefined command: %q. Try \"help\".\n", fields[0])
		return
	}

	if err := cmd.run(s, fields[1:]); err != nil {
		switch status.CodeOf(err) {
		case status.BreakpointHit, status.ProcStopped, status.ProcExited, status.ProcTerminated:
			// Informational stop reports, not failures.
			fmt.Fprintln(s.out, err.Error())
		default:
			fmt.Fprintln(s.out, status.Last())
		}
	}
}

// runShell reads and dispatches commands until quit or EOF.
func runShell(inf *inferior.Inferior) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(sylvan) ",
		HistoryFile:     os.ExpandEnv("$HOME/.sylvan_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT)
	defer signal.Stop(sigc)
	go func() {
		for range sigc {
			interrupted.Store(true)
		}
	}()

	s := &session{inf: inf, out: rl.Stdout()}
	for !s.quit {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			interrupted.Store(false)
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		dispatch(s, strings.TrimSpace(line))
	}
	return nil
}

// helpText renders the command summary table.
func helpText(out io.Writer) {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := registry[name]
		fmt.Fprintf(out, "  %-14s %s\n", c.name, c.summary)
	}
}

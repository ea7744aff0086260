// Copyright 2024 Medgenome Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner executes external tools and streams their output to the
// event log. A failing tool is an expected outcome, not an error: Run reports
// pass/fail and leaves artifact validation to the caller.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/medgenome/panelpipe/eventlog"
)

// Invocation describes one external command. Exactly one of Argv and Shell
// must be set; Shell strings run under "bash -c" so that the pipe and
// redirection syntax of the wrapped tools keeps working.
type Invocation struct {
	Argv  []string
	Shell string

	// Desc is a one-line description for progress events.
	Desc string
	// Program, SampleID and RunID tag the emitted events.
	Program  string
	SampleID string
	RunID    string
}

func (inv Invocation) command(ctx context.Context) *exec.Cmd {
	if len(inv.Argv) > 0 {
		return exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	}
	return exec.CommandContext(ctx, "bash", "-c", inv.Shell)
}

// String returns the command line for logging.
func (inv Invocation) String() string {
	if len(inv.Argv) > 0 {
		s := inv.Argv[0]
		for _, a := range inv.Argv[1:] {
			s += " " + a
		}
		return s
	}
	return inv.Shell
}

// Runner runs invocations and forwards every output line to Events at DEBUG
// level. Line forwarding is observability only; it never influences the
// result.
type Runner struct {
	Events eventlog.Sink
}

// New returns a Runner emitting to the given sink. A nil sink discards
// events.
func New(events eventlog.Sink) *Runner {
	if events == nil {
		events = eventlog.Nop{}
	}
	return &Runner{Events: events}
}

// Run executes the invocation and returns true iff the process started and
// exited zero. The context deadline, if any, is attached to the process; a
// cancelled context kills it and Run returns false.
func (r *Runner) Run(ctx context.Context, inv Invocation) bool {
	r.Events.Log(fmt.Sprintf("%s: %s", inv.Desc, inv.String()), eventlog.Info, inv.Program, inv.SampleID, inv.RunID)

	cmd := inv.command(ctx)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.Events.Log(fmt.Sprintf("%s: stdout pipe: %v", inv.Desc, err), eventlog.Error, inv.Program, inv.SampleID, inv.RunID)
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.Events.Log(fmt.Sprintf("%s: stderr pipe: %v", inv.Desc, err), eventlog.Error, inv.Program, inv.SampleID, inv.RunID)
		return false
	}
	if err := cmd.Start(); err != nil {
		r.Events.Log(fmt.Sprintf("%s: start: %v", inv.Desc, err), eventlog.Error, inv.Program, inv.SampleID, inv.RunID)
		return false
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go r.stream(&wg, stdout, inv)
	go r.stream(&wg, stderr, inv)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		r.Events.Log(fmt.Sprintf("%s: %v", inv.Desc, err), eventlog.Error, inv.Program, inv.SampleID, inv.RunID)
		return false
	}
	return true
}

func (r *Runner) stream(wg *sync.WaitGroup, src io.Reader, inv Invocation) {
	defer wg.Done()
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		r.Events.Log(line, eventlog.Debug, inv.Program, inv.SampleID, inv.RunID)
	}
	// A scan error means the pipe broke; the exit code still decides the
	// outcome.
}

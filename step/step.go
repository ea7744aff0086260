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

// Package step provides the idempotent, retry-supervised unit of pipeline
// execution. A step's sole source of truth is artifact existence on the
// filesystem: if all expected outputs are already valid the action is not
// invoked, otherwise the action runs under a bounded retry loop and the
// outputs are re-validated afterwards.
//
// The existence check and the action are not one transaction. Two workers
// driving the same sample can both see missing artifacts and duplicate work;
// callers must serialize execution per sample.
package step

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/medgenome/panelpipe/eventlog"
)

// Status is the outcome of one step execution.
type Status int

const (
	// Exists means all expected artifacts were already valid; the action
	// was not invoked.
	Exists Status = iota
	// Success means the action ran and the artifacts validated.
	Success
	// ErrorProcess means the action failed on every permitted attempt.
	ErrorProcess
	// ErrorMissingArtifact means the action reported success but an
	// expected artifact is absent or invalid.
	ErrorMissingArtifact
	// ErrorPrecondition means a required upstream artifact was missing, so
	// the action was never attempted.
	ErrorPrecondition
)

func (s Status) String() string {
	switch s {
	case Exists:
		return "exists"
	case Success:
		return "success"
	case ErrorProcess:
		return "error-process"
	case ErrorMissingArtifact:
		return "error-missing-artifact"
	case ErrorPrecondition:
		return "error-precondition"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Failed reports whether the status is one of the error classes.
func (s Status) Failed() bool { return s >= ErrorProcess }

// Artifact is one expected output file. When MinBytes is positive the file
// must also reach that size to count as valid; large binary outputs are prone
// to truncation on tool crash, and a bare existence check would accept them.
type Artifact struct {
	Path     string
	MinBytes int64
}

// Valid reports whether the artifact exists (and meets MinBytes, if set).
func (a Artifact) Valid() bool {
	fi, err := os.Stat(a.Path)
	if err != nil || fi.IsDir() {
		return false
	}
	return a.MinBytes <= 0 || fi.Size() >= a.MinBytes
}

func allValid(as []Artifact) bool {
	for _, a := range as {
		if !a.Valid() {
			return false
		}
	}
	return true
}

// DefaultRetries is the attempt bound used when a Step does not set one.
// Fixed-count, no backoff; the wrapped tools fail fast or not at all.
const DefaultRetries = 3

// Step wraps a named action with artifact-based memoization.
type Step struct {
	Name     string
	SampleID string
	RunID    string

	// Outputs are the artifacts the action must produce.
	Outputs []Artifact
	// Needs are upstream artifacts required before the action may run.
	Needs []Artifact
	// Retries bounds action attempts; 0 means DefaultRetries.
	Retries int

	Events eventlog.Sink

	// Action runs the underlying work and reports pass/fail. It must be
	// safe to invoke repeatedly.
	Action func(ctx context.Context) bool
}

func (s *Step) events() eventlog.Sink {
	if s.Events == nil {
		return eventlog.Nop{}
	}
	return s.Events
}

// Record is the persisted outcome of one step for one sample.
type Record struct {
	Step     string
	Status   Status
	Attempts int
	Started  time.Time
	Finished time.Time
	// Artifacts lists the expected output paths, valid or not.
	Artifacts []string
}

// Do runs the step and returns its status. See the package comment for the
// memoization and retry contract.
func (s *Step) Do(ctx context.Context) Status {
	rec := s.Execute(ctx)
	return rec.Status
}

// Execute is Do plus timing: it emits scoped start/end events and returns the
// full Record.
func (s *Step) Execute(ctx context.Context) Record {
	ev := s.events()
	rec := Record{Step: s.Name, Started: time.Now()}
	for _, a := range s.Outputs {
		rec.Artifacts = append(rec.Artifacts, a.Path)
	}
	done := eventlog.Scoped(ev, s.Name, s.Name, s.SampleID, s.RunID)
	defer func() { done() }()

	if len(s.Outputs) > 0 && allValid(s.Outputs) {
		ev.Log(fmt.Sprintf("%s: artifacts exist, skipping", s.Name), eventlog.Info, s.Name, s.SampleID, s.RunID)
		rec.Status = Exists
		rec.Finished = time.Now()
		return rec
	}
	for _, need := range s.Needs {
		if !need.Valid() {
			ev.Log(fmt.Sprintf("%s: missing required input %s", s.Name, need.Path), eventlog.Error, s.Name, s.SampleID, s.RunID)
			rec.Status = ErrorPrecondition
			rec.Finished = time.Now()
			return rec
		}
	}

	retries := s.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	ok := false
	for attempt := 1; attempt <= retries; attempt++ {
		rec.Attempts = attempt
		if ctx.Err() != nil {
			break
		}
		if ok = s.Action(ctx); ok {
			break
		}
		if attempt < retries {
			ev.Log(fmt.Sprintf("%s: attempt %d of %d failed, retrying", s.Name, attempt, retries),
				eventlog.Warning, s.Name, s.SampleID, s.RunID)
		}
	}
	switch {
	case !ok:
		ev.Log(fmt.Sprintf("%s: failed after %d attempts", s.Name, rec.Attempts), eventlog.Error, s.Name, s.SampleID, s.RunID)
		rec.Status = ErrorProcess
	case !allValid(s.Outputs):
		ev.Log(fmt.Sprintf("%s: completed but expected artifacts are missing or truncated", s.Name),
			eventlog.Error, s.Name, s.SampleID, s.RunID)
		rec.Status = ErrorMissingArtifact
	default:
		rec.Status = Success
	}
	rec.Finished = time.Now()
	return rec
}

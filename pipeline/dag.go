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

package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/traverse"
	"github.com/pkg/errors"

	"github.com/medgenome/panelpipe/eventlog"
	"github.com/medgenome/panelpipe/runner"
	"github.com/medgenome/panelpipe/step"
)

// CallerParallelism bounds the variant-caller worker pool. The callers are
// the one concurrency point inside a sample; everything else runs
// sequentially because each wrapped tool already saturates the machine.
const CallerParallelism = 4

// SampleContext is everything a stage needs to build its step for one
// sample.
type SampleContext struct {
	SampleID string
	RunID    string
	Cfg      *Config
	Lay      Layout
	Runner   *runner.Runner
	Events   eventlog.Sink
}

// Stage is one node of the per-sample DAG. Needs lists the names of stages
// whose artifacts this stage consumes; edges are explicit so a failure
// disables only its dependent chain, never unrelated branches. Stages with
// Caller set form the fork-join variant-caller group.
type Stage struct {
	Name   string
	Needs  []string
	Caller bool
	Build  func(sc *SampleContext) *step.Step
}

// ValidateStages checks that the stage list is topologically ordered: every
// Needs entry must name an earlier stage, exactly once.
func ValidateStages(stages []Stage) error {
	seen := make(map[string]bool, len(stages))
	for _, st := range stages {
		if seen[st.Name] {
			return errors.Errorf("pipeline: duplicate stage %q", st.Name)
		}
		for _, need := range st.Needs {
			if !seen[need] {
				return errors.Errorf("pipeline: stage %q needs %q, which is not an earlier stage", st.Name, need)
			}
		}
		seen[st.Name] = true
	}
	return nil
}

// ExecuteSample drives the stage list for one sample and returns the ordered
// step records. The list is walked in order; consecutive caller stages whose
// predecessors all succeeded run concurrently under a bounded pool, and the
// walk blocks until the whole group joins. A stage whose needs failed is
// recorded as error-precondition without running, and execution continues
// with stages on unaffected branches.
func ExecuteSample(ctx context.Context, sc *SampleContext, stages []Stage) ([]step.Record, error) {
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}
	var (
		records  []step.Record
		statuses = make(map[string]step.Status, len(stages))
	)
	blocked := func(st Stage) string {
		for _, need := range st.Needs {
			if statuses[need].Failed() {
				return need
			}
		}
		return ""
	}
	record := func(rec step.Record) {
		records = append(records, rec)
		statuses[rec.Step] = rec.Status
	}
	skip := func(st Stage, need string) {
		sc.Events.Log(
			fmt.Sprintf("%s: skipped, upstream stage %s failed", st.Name, need),
			eventlog.Error, st.Name, sc.SampleID, sc.RunID)
		record(step.Record{Step: st.Name, Status: step.ErrorPrecondition})
	}

	for i := 0; i < len(stages); {
		st := stages[i]
		if !st.Caller {
			if need := blocked(st); need != "" {
				skip(st, need)
			} else {
				record(st.Build(sc).Execute(ctx))
			}
			i++
			continue
		}

		// Gather the caller group and fork-join it.
		var group []Stage
		for i < len(stages) && stages[i].Caller {
			group = append(group, stages[i])
			i++
		}
		groupRecs := make([]step.Record, len(group))
		var mu sync.Mutex
		_ = traverse.Limit(CallerParallelism).Each(len(group), func(j int) error {
			st := group[j]
			if need := blocked(st); need != "" {
				sc.Events.Log(
					fmt.Sprintf("%s: skipped, upstream stage %s failed", st.Name, need),
					eventlog.Error, st.Name, sc.SampleID, sc.RunID)
				mu.Lock()
				groupRecs[j] = step.Record{Step: st.Name, Status: step.ErrorPrecondition}
				mu.Unlock()
				return nil
			}
			rec := st.Build(sc).Execute(ctx)
			mu.Lock()
			groupRecs[j] = rec
			mu.Unlock()
			return nil
		})
		for _, rec := range groupRecs {
			record(rec)
		}
	}
	if err := ctx.Err(); err != nil {
		return records, err
	}
	return records, nil
}

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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medgenome/panelpipe/eventlog"
	"github.com/medgenome/panelpipe/runner"
	"github.com/medgenome/panelpipe/step"
)

type entry struct {
	message  string
	level    eventlog.Level
	program  string
	sampleID string
}

type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) Log(message string, level eventlog.Level, program, sampleID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{message, level, program, sampleID})
}

func testContext(dir string) *SampleContext {
	events := &recorder{}
	return &SampleContext{
		SampleID: "S1",
		RunID:    "run42",
		Cfg:      &Config{},
		Lay:      Layout{Datadir: dir},
		Runner:   runner.New(events),
		Events:   events,
	}
}

// fakeStage builds a stage whose step writes <dir>/<name>.out when ok.
func fakeStage(dir, name string, needs []string, caller, ok bool) Stage {
	return Stage{
		Name:   name,
		Needs:  needs,
		Caller: caller,
		Build: func(sc *SampleContext) *step.Step {
			return &step.Step{
				Name:     name,
				SampleID: sc.SampleID,
				RunID:    sc.RunID,
				Outputs:  []step.Artifact{{Path: filepath.Join(dir, name+".out")}},
				Events:   sc.Events,
				Retries:  1,
				Action: func(context.Context) bool {
					if !ok {
						return false
					}
					return os.WriteFile(filepath.Join(dir, name+".out"), []byte(name), 0666) == nil
				},
			}
		},
	}
}

func statusByStep(records []step.Record) map[string]step.Status {
	m := make(map[string]step.Status, len(records))
	for _, rec := range records {
		m[rec.Step] = rec.Status
	}
	return m
}

func TestValidateStages(t *testing.T) {
	assert.NoError(t, ValidateStages(Stages()))

	assert.Error(t, ValidateStages([]Stage{
		{Name: "a"}, {Name: "a"},
	}))
	assert.Error(t, ValidateStages([]Stage{
		{Name: "a", Needs: []string{"b"}}, {Name: "b"},
	}))
	assert.Error(t, ValidateStages([]Stage{
		{Name: "a", Needs: []string{"a"}},
	}))
}

func TestExecuteSampleFailureIsolation(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	sc := testContext(tmpDir)

	stages := []Stage{
		fakeStage(tmpDir, "a", nil, false, false),
		fakeStage(tmpDir, "b", []string{"a"}, false, true),
		fakeStage(tmpDir, "c", nil, false, true),
		fakeStage(tmpDir, "d", []string{"b"}, false, true),
	}
	records, err := ExecuteSample(context.Background(), sc, stages)
	require.NoError(t, err)
	require.Len(t, records, 4)

	statuses := statusByStep(records)
	assert.Equal(t, step.ErrorProcess, statuses["a"])
	assert.Equal(t, step.ErrorPrecondition, statuses["b"])
	assert.Equal(t, step.Success, statuses["c"])
	// The skip propagates down the dependent chain.
	assert.Equal(t, step.ErrorPrecondition, statuses["d"])
	// The unaffected branch really ran.
	_, statErr := os.Stat(filepath.Join(tmpDir, "c.out"))
	assert.NoError(t, statErr)
}

func TestExecuteSampleCallerForkJoin(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	sc := testContext(tmpDir)

	callers := []string{"c1", "c2", "c3", "c4"}
	stages := []Stage{fakeStage(tmpDir, "prep", nil, false, true)}
	for _, name := range callers {
		stages = append(stages, fakeStage(tmpDir, name, []string{"prep"}, true, true))
	}
	// The merge stage verifies the join: every caller output must already be
	// on disk when it runs.
	merge := Stage{
		Name:  "merge",
		Needs: callers,
		Build: func(sc *SampleContext) *step.Step {
			return &step.Step{
				Name:    "merge",
				Outputs: []step.Artifact{{Path: filepath.Join(tmpDir, "merge.out")}},
				Events:  sc.Events,
				Retries: 1,
				Action: func(context.Context) bool {
					for _, name := range callers {
						if _, err := os.Stat(filepath.Join(tmpDir, name+".out")); err != nil {
							return false
						}
					}
					return os.WriteFile(filepath.Join(tmpDir, "merge.out"), []byte("ok"), 0666) == nil
				},
			}
		},
	}
	stages = append(stages, merge)

	records, err := ExecuteSample(context.Background(), sc, stages)
	require.NoError(t, err)
	statuses := statusByStep(records)
	for _, name := range append(callers, "prep", "merge") {
		assert.Equal(t, step.Success, statuses[name], name)
	}
}

func TestExecuteSampleCallerPartialFailure(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	sc := testContext(tmpDir)

	stages := []Stage{
		fakeStage(tmpDir, "prep", nil, false, true),
		fakeStage(tmpDir, "c1", []string{"prep"}, true, true),
		fakeStage(tmpDir, "c2", []string{"prep"}, true, false),
		fakeStage(tmpDir, "merge", []string{"c1", "c2"}, false, true),
		fakeStage(tmpDir, "qc", []string{"prep"}, false, true),
	}
	records, err := ExecuteSample(context.Background(), sc, stages)
	require.NoError(t, err)
	statuses := statusByStep(records)
	assert.Equal(t, step.Success, statuses["c1"])
	assert.Equal(t, step.ErrorProcess, statuses["c2"])
	assert.Equal(t, step.ErrorPrecondition, statuses["merge"])
	assert.Equal(t, step.Success, statuses["qc"])
}

func TestExecuteSampleIdempotent(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	sc := testContext(tmpDir)

	stages := []Stage{fakeStage(tmpDir, "a", nil, false, true)}
	records, err := ExecuteSample(context.Background(), sc, stages)
	require.NoError(t, err)
	assert.Equal(t, step.Success, records[0].Status)

	records, err = ExecuteSample(context.Background(), sc, stages)
	require.NoError(t, err)
	assert.Equal(t, step.Exists, records[0].Status)
}

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

package runner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medgenome/panelpipe/eventlog"
)

type entry struct {
	message string
	level   eventlog.Level
}

type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) Log(message string, level eventlog.Level, program, sampleID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{message, level})
}

func (r *recorder) lines(level eventlog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var lines []string
	for _, e := range r.entries {
		if e.level == level {
			lines = append(lines, e.message)
		}
	}
	return lines
}

func TestRunSuccess(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	ok := r.Run(context.Background(), Invocation{Argv: []string{"true"}, Desc: "noop"})
	assert.True(t, ok)
	assert.Empty(t, rec.lines(eventlog.Error))
}

func TestRunFailure(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	ok := r.Run(context.Background(), Invocation{Argv: []string{"false"}, Desc: "noop"})
	assert.False(t, ok)
	require.NotEmpty(t, rec.lines(eventlog.Error))
}

func TestRunMissingExecutable(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	ok := r.Run(context.Background(), Invocation{Argv: []string{"/no/such/binary"}, Desc: "noop"})
	assert.False(t, ok)
}

func TestRunStreamsOutput(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	ok := r.Run(context.Background(), Invocation{
		Shell: "echo out-line; echo err-line 1>&2",
		Desc:  "stream",
	})
	assert.True(t, ok)
	lines := rec.lines(eventlog.Debug)
	assert.Contains(t, lines, "out-line")
	assert.Contains(t, lines, "err-line")
}

func TestRunCancelled(t *testing.T) {
	rec := &recorder{}
	r := New(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := r.Run(ctx, Invocation{Shell: "sleep 60", Desc: "sleep"})
	assert.False(t, ok)
}

func TestToolShell(t *testing.T) {
	tool := Tool{Name: "picard", Exe: "java -jar /opt/picard.jar"}
	inv := tool.Shell("sort VCF", "S1", "run42", "SortVcf I=%s O=%s", "in.vcf", "out.vcf")
	assert.Equal(t, "java -jar /opt/picard.jar SortVcf I=in.vcf O=out.vcf", inv.Shell)
	assert.Equal(t, "picard", inv.Program)
	assert.Equal(t, "S1", inv.SampleID)
	assert.Equal(t, "run42", inv.RunID)
	assert.Equal(t, inv.Shell, inv.String())
}

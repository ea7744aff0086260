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
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/medgenome/panelpipe/cnv"
	"github.com/medgenome/panelpipe/eventlog"
	"github.com/medgenome/panelpipe/identity"
	"github.com/medgenome/panelpipe/runner"
	"github.com/medgenome/panelpipe/step"
)

// runProgram names the orchestrator itself in run-level events.
const runProgram = "pipeline"

// nearDuplicateDistance is the fingerprint Hamming distance at or below
// which two samples are reported as suspiciously similar.
const nearDuplicateDistance = 1

// Orchestrator drives a whole run: per-sample stage execution in sequence,
// then the run-level aggregations. Samples are independent of each other
// until aggregation, so one sample's failure never stops the others.
type Orchestrator struct {
	Cfg    *Config
	Lay    Layout
	Events eventlog.Sink

	// Samples restricts the run to the named subset; empty means every
	// sample discovered in the run directory.
	Samples []string

	// Stages overrides the built-in stage list, for tests.
	Stages []Stage

	// PerSampleDB disables the per-sample SQLite log databases when false.
	PerSampleDB bool
}

// SampleResult is one sample's step records plus the rolled-up verdict.
type SampleResult struct {
	SampleID string
	Records  []step.Record
	Failed   bool
}

// RunResult is the outcome of a full run.
type RunResult struct {
	RunID   string
	Samples []SampleResult
	// Duplicates flags samples whose identity barcode collides with
	// another sample in the run.
	Duplicates map[string]bool
	// AggregationErr is set when a run-level aggregation step failed.
	AggregationErr error
}

// FailedSamples returns the ids of samples with at least one failed step.
func (r *RunResult) FailedSamples() []string {
	var failed []string
	for _, s := range r.Samples {
		if s.Failed {
			failed = append(failed, s.SampleID)
		}
	}
	return failed
}

// ExitCode maps the run outcome to a process exit code: 0 when everything
// succeeded, 1 when some samples failed but the run completed, 2 when the
// run produced nothing usable.
func (r *RunResult) ExitCode() int {
	if r.AggregationErr != nil {
		return 2
	}
	failed := len(r.FailedSamples())
	switch {
	case failed == 0:
		return 0
	case failed == len(r.Samples):
		return 2
	}
	return 1
}

// Run executes the pipeline over the run directory and returns the result.
// An error return means the run could not start at all; per-sample and
// aggregation failures are reported in the result instead.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	runID := o.Lay.RunID()
	res := &RunResult{RunID: runID}

	samples := o.Samples
	if len(samples) == 0 {
		var err error
		if samples, err = o.Lay.DiscoverSamples(); err != nil {
			return nil, errors.Wrapf(err, "run %s: discover samples", runID)
		}
	}
	if len(samples) == 0 {
		return nil, errors.Errorf("run %s: no samples found in %s", runID, o.Lay.Datadir)
	}
	stages := o.Stages
	if stages == nil {
		stages = Stages()
	}
	if err := ValidateStages(stages); err != nil {
		return nil, err
	}

	o.Events.Log(fmt.Sprintf("starting run with %d samples", len(samples)),
		eventlog.Info, runProgram, "NA", runID)
	for _, sample := range samples {
		rec, err := o.runSample(ctx, sample, runID, stages)
		res.Samples = append(res.Samples, rec)
		if err != nil {
			return res, err
		}
	}

	o.aggregate(res, samples)
	o.Events.Log(fmt.Sprintf("run finished, %d of %d samples failed",
		len(res.FailedSamples()), len(samples)),
		eventlog.Info, runProgram, "NA", runID)
	return res, ctx.Err()
}

func (o *Orchestrator) runSample(ctx context.Context, sample, runID string, stages []Stage) (SampleResult, error) {
	res := SampleResult{SampleID: sample}
	if o.Cfg.BED[sample] == "" {
		o.Events.Log("no target BED configured for sample", eventlog.Error, runProgram, sample, runID)
		res.Records = []step.Record{{Step: "configure", Status: step.ErrorPrecondition}}
		res.Failed = true
		return res, nil
	}
	if err := o.Lay.Provision(sample); err != nil {
		return res, errors.Wrapf(err, "provision %s", sample)
	}

	events := o.Events
	if o.PerSampleDB {
		db, err := eventlog.OpenSampleDB(o.Lay.Datadir, sample)
		if err != nil {
			// The pipeline outlives its log sink; keep going on the
			// remaining sinks.
			o.Events.Log(fmt.Sprintf("sample log db: %v", err),
				eventlog.Warning, runProgram, sample, runID)
		} else {
			events = eventlog.Multi{o.Events, db}
			defer db.Close() // nolint: errcheck
		}
	}

	sc := &SampleContext{
		SampleID: sample,
		RunID:    runID,
		Cfg:      o.Cfg,
		Lay:      o.Lay,
		Runner:   runner.New(events),
		Events:   events,
	}
	records, err := ExecuteSample(ctx, sc, stages)
	res.Records = records
	for _, rec := range records {
		if rec.Status.Failed() {
			res.Failed = true
			break
		}
	}
	return res, err
}

// aggregate builds the run-level reports. Every aggregation skips samples
// whose per-sample inputs are missing, with a warning, so a partial run
// still yields reports over the samples that completed.
func (o *Orchestrator) aggregate(res *RunResult, samples []string) {
	runID := res.RunID
	warnSkip := func(what, sample string) {
		o.Events.Log(fmt.Sprintf("%s: no output for sample %s, skipping", what, sample),
			eventlog.Warning, what, "NA", runID)
	}

	fail := func(what string, err error) {
		res.AggregationErr = errors.Wrap(err, what)
		o.Events.Log(err.Error(), eventlog.Error, what, "NA", runID)
	}

	// Identity fingerprints and duplicate detection.
	barcodes := make(map[string]string)
	for _, sample := range samples {
		data, err := os.ReadFile(o.Lay.BarcodeFile(sample))
		if err != nil {
			warnSkip("identity_compile", sample)
			continue
		}
		barcodes[sample] = string(trimNewline(data))
	}
	if len(barcodes) > 0 {
		if err := writeTo(o.Lay.RunBarcodes(), func(w io.Writer) error {
			return identity.WriteBarcodes(w, barcodes)
		}); err != nil {
			fail("identity_compile", err)
		}
		if err := o.compileIdentity(samples); err != nil {
			fail("identity_compile", err)
		}
		res.Duplicates = identity.FindDuplicates(barcodes)
		for sample, dup := range res.Duplicates {
			if dup {
				o.Events.Log(
					fmt.Sprintf("sample %s shares its identity barcode with another sample", sample),
					eventlog.Error, "identity_compile", sample, runID)
			}
		}
		for _, pair := range identity.FindNearDuplicates(barcodes, nearDuplicateDistance) {
			o.Events.Log(
				fmt.Sprintf("samples %s and %s differ at only %d identity loci",
					pair.SampleA, pair.SampleB, pair.Distance),
				eventlog.Warning, "identity_compile", pair.SampleA, runID)
		}
	}

	o.aggregateCNV(res, samples, warnSkip, fail)
	o.aggregateUniformity(samples, warnSkip, fail)
}

// compileIdentity concatenates the per-sample full identity reports into the
// run-level identity file, one section per sample.
func (o *Orchestrator) compileIdentity(samples []string) error {
	return writeTo(o.Lay.RunIdentity(), func(w io.Writer) error {
		for _, sample := range samples {
			in, err := os.Open(o.Lay.FullIdentity(sample))
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "## %s\n", sample); err != nil {
				_ = in.Close()
				return err
			}
			_, err = io.Copy(w, in)
			_ = in.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (o *Orchestrator) aggregateCNV(res *RunResult, samples []string, warnSkip func(what, sample string), fail func(what string, err error)) {
	runID := res.RunID
	paths := make(map[string]string)
	for _, sample := range samples {
		p := o.Lay.CountsFile(sample)
		if _, err := os.Stat(p); err != nil {
			warnSkip("cnv_compile", sample)
			continue
		}
		paths[sample] = p
	}
	if len(paths) == 0 {
		o.Events.Log("no sample produced window counts, skipping CNV tables",
			eventlog.Warning, "cnv_compile", "NA", runID)
		return
	}

	matrix, err := cnv.Compile(paths, func(path string) (io.ReadCloser, error) {
		return os.Open(path)
	})
	if err != nil {
		fail("cnv_compile", err)
		return
	}
	sexes := o.Cfg.Sexes()
	norm := cnv.Normalize(matrix, sexes)

	for _, out := range []struct {
		path  string
		write func(io.Writer) error
	}{
		{o.Lay.CNVCounts(), matrix.WriteTSV},
		{o.Lay.CNVSum(), norm.Sum.WriteTSV},
		{o.Lay.CNVMean(), norm.WriteNormalized},
	} {
		if err := writeTo(out.path, out.write); err != nil {
			fail("cnv_compile", err)
			return
		}
	}

	for _, call := range norm.Calls() {
		o.Events.Log(
			fmt.Sprintf("%s %s: ratio %.3f classified %s", call.Sample, call.Window, call.Ratio, call.Call),
			eventlog.Warning, "cnv_compile", call.Sample, runID)
	}

	if strat := cnv.NormalizeXLinked(matrix, norm.Sum, sexes, cnv.XLinkedGenes); strat != nil {
		if err := writeTo(o.Lay.CNVXLinked(), strat.WriteTSV); err != nil {
			fail("cnv_compile", err)
			return
		}
		if err := writeTo(o.Lay.CNVXLinkedCross(), strat.Cross.WriteTSV); err != nil {
			fail("cnv_compile", err)
			return
		}
	} else {
		o.Events.Log("fewer than two declared males, skipping sex-stratified tables",
			eventlog.Warning, "cnv_compile", "NA", runID)
	}
}

func (o *Orchestrator) aggregateUniformity(samples []string, warnSkip func(what, sample string), fail func(what string, err error)) {
	positions, err := cnv.PanelPositions(o.Cfg.Panel)
	if err != nil {
		fail("uniformity", err)
		return
	}
	var rows []cnv.UniformityRow
	for _, sample := range samples {
		in, err := os.Open(o.Lay.NuclOut(sample))
		if err != nil {
			warnSkip("uniformity", sample)
			continue
		}
		row, err := cnv.CoverageUniformity(in, sample, positions)
		_ = in.Close()
		if err != nil {
			fail("uniformity", err)
			return
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		o.Events.Log("no sample produced coverage metrics, skipping the uniformity report",
			eventlog.Warning, "uniformity", "NA", o.Lay.RunID())
		return
	}
	if err := writeTo(o.Lay.Uniformity(), func(w io.Writer) error {
		return cnv.WriteUniformity(w, rows)
	}); err != nil {
		fail("uniformity", err)
	}
}

func writeTo(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

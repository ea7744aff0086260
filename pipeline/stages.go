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
	"os"
	"path/filepath"

	"github.com/medgenome/panelpipe/count"
	"github.com/medgenome/panelpipe/eventlog"
	"github.com/medgenome/panelpipe/identity"
	"github.com/medgenome/panelpipe/runner"
	"github.com/medgenome/panelpipe/step"
)

// minBAMBytes is the validity floor for BAM artifacts: a crashed tool can
// leave a truncated file that still exists, and a bare BGZF EOF block alone
// is 28 bytes.
const minBAMBytes = 10 * 1024

func (sc *SampleContext) runStep(name string, inv runner.Invocation, needs []step.Artifact, outputs ...step.Artifact) *step.Step {
	return &step.Step{
		Name:     name,
		SampleID: sc.SampleID,
		RunID:    sc.RunID,
		Outputs:  outputs,
		Needs:    needs,
		Events:   sc.Events,
		Action: func(ctx context.Context) bool {
			return sc.Runner.Run(ctx, inv)
		},
	}
}

func bam(path string) step.Artifact  { return step.Artifact{Path: path, MinBytes: minBAMBytes} }
func file(path string) step.Artifact { return step.Artifact{Path: path} }

// Stages returns the fixed per-sample analysis chain. The order is the
// topological order; ExecuteSample enforces the Needs edges.
func Stages() []Stage {
	return []Stage{
		{Name: "align", Build: func(sc *SampleContext) *step.Step {
			fastqs, err := sc.Lay.Fastqs(sc.SampleID)
			if err != nil || len(fastqs) == 0 {
				// A missing input set surfaces as a precondition failure
				// on the (nonexistent) FASTQ glob.
				fastqs = []string{filepath.Join(sc.Lay.Datadir, sc.SampleID+"_R1.fastq.gz")}
			}
			needs := make([]step.Artifact, len(fastqs))
			for i, fq := range fastqs {
				needs[i] = file(fq)
			}
			return sc.runStep("align", sc.bwaAlign(fastqs), needs,
				bam(sc.Lay.AlignedBAM(sc.SampleID)))
		}},
		{Name: "dedup", Needs: []string{"align"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("dedup", sc.markDuplicates(),
				[]step.Artifact{bam(sc.Lay.AlignedBAM(sc.SampleID))},
				bam(sc.Lay.DedupBAM(sc.SampleID)), file(sc.Lay.DedupMetrics(sc.SampleID)))
		}},
		{Name: "recalibration1", Needs: []string{"dedup"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("recalibration1", sc.baseRecalibrator(),
				[]step.Artifact{bam(sc.Lay.DedupBAM(sc.SampleID))},
				file(sc.Lay.RecalTable(sc.SampleID)))
		}},
		{Name: "recalibrate", Needs: []string{"recalibration1"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("recalibrate", sc.applyBQSR(),
				[]step.Artifact{bam(sc.Lay.DedupBAM(sc.SampleID)), file(sc.Lay.RecalTable(sc.SampleID))},
				bam(sc.Lay.RecalBAM(sc.SampleID)))
		}},

		// The independent variant callers: the fork-join group.
		{Name: "variants_GATK", Needs: []string{"recalibrate"}, Caller: true,
			Build: func(sc *SampleContext) *step.Step {
				return sc.runStep("variants_GATK", sc.gatkCaller(),
					[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
					file(sc.Lay.GATKVcf(sc.SampleID)))
			}},
		{Name: "variants_GATK3", Needs: []string{"recalibrate"}, Caller: true,
			Build: func(sc *SampleContext) *step.Step {
				return sc.runStep("variants_GATK3", sc.gatk3Caller(),
					[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
					file(sc.Lay.GATK3Vcf(sc.SampleID)))
			}},
		{Name: "variants_freebayes", Needs: []string{"recalibrate"}, Caller: true,
			Build: func(sc *SampleContext) *step.Step {
				return &step.Step{
					Name:     "variants_freebayes",
					SampleID: sc.SampleID,
					RunID:    sc.RunID,
					Needs:    []step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
					Outputs:  []step.Artifact{file(sc.Lay.FreebayesVcf(sc.SampleID))},
					Events:   sc.Events,
					Action: func(ctx context.Context) bool {
						if !sc.Runner.Run(ctx, sc.freebayesCaller()) {
							return false
						}
						if !sc.Runner.Run(ctx, sc.picardSortVcf()) {
							return false
						}
						if err := editFreebayesVCF(
							sc.Lay.FreebayesSortedVcf(sc.SampleID),
							sc.Lay.FreebayesVcf(sc.SampleID), sc.SampleID); err != nil {
							sc.Events.Log(fmt.Sprintf("freebayes edit: %v", err),
								eventlog.Error, "variants_freebayes", sc.SampleID, sc.RunID)
							return false
						}
						return true
					},
				}
			}},
		{Name: "variants_octopus", Needs: []string{"recalibrate"}, Caller: true,
			Build: func(sc *SampleContext) *step.Step {
				return sc.runStep("variants_octopus", sc.octopusCaller(),
					[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
					file(sc.Lay.OctopusVcf(sc.SampleID)))
			}},

		{Name: "vcf_merge",
			Needs: []string{"variants_GATK", "variants_GATK3", "variants_freebayes", "variants_octopus"},
			Build: func(sc *SampleContext) *step.Step {
				return sc.runStep("vcf_merge", sc.combineVariants(),
					[]step.Artifact{
						file(sc.Lay.GATKVcf(sc.SampleID)),
						file(sc.Lay.GATK3Vcf(sc.SampleID)),
						file(sc.Lay.FreebayesVcf(sc.SampleID)),
						file(sc.Lay.OctopusVcf(sc.SampleID)),
					},
					file(sc.Lay.MergedVcf(sc.SampleID)))
			}},
		{Name: "snpEff", Needs: []string{"vcf_merge"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("snpEff", sc.snpEffAnnotate(),
				[]step.Artifact{file(sc.Lay.MergedVcf(sc.SampleID))},
				file(sc.Lay.AnnotatedVcf(sc.SampleID)))
		}},

		// QC and extraction branches: independent of each other and of
		// annotation, all anchored on the recalibrated reads.
		{Name: "picard_coverage", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			out := filepath.Join(sc.Lay.QCDir(sc.SampleID), sc.SampleID+".coverage.out")
			return sc.runStep("picard_coverage",
				sc.coverageMetrics(sc.Cfg.Bait, out, sc.Lay.NuclOut(sc.SampleID)),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.NuclOut(sc.SampleID)))
		}},
		{Name: "picard_coverage_panel", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			out := filepath.Join(sc.Lay.QCDir(sc.SampleID), sc.SampleID+".panel.coverage.out")
			return sc.runStep("picard_coverage_panel",
				sc.coverageMetrics(sc.Cfg.BED[sc.SampleID], out, sc.Lay.NuclPanelOut(sc.SampleID)),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.NuclPanelOut(sc.SampleID)))
		}},
		{Name: "picard_yield", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("picard_yield", sc.yieldMetrics(),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.YieldOut(sc.SampleID)))
		}},
		{Name: "picard_hs_metrics", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("picard_hs_metrics",
				sc.hsMetrics(sc.Cfg.Bait, sc.Lay.HsMetricsOut(sc.SampleID)),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.HsMetricsOut(sc.SampleID)))
		}},
		{Name: "picard_hs_metrics_panel", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("picard_hs_metrics_panel",
				sc.hsMetrics(sc.Cfg.BED[sc.SampleID], sc.Lay.HsMetricsPanelOut(sc.SampleID)),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.HsMetricsPanelOut(sc.SampleID)))
		}},
		{Name: "picard_align_metrics", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("picard_align_metrics", sc.alignMetrics(),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.AlignMetricsOut(sc.SampleID)))
		}},

		{Name: "mpileup", Needs: []string{"recalibrate"}, Build: func(sc *SampleContext) *step.Step {
			return sc.runStep("mpileup", sc.identityMpileup(),
				[]step.Artifact{bam(sc.Lay.RecalBAM(sc.SampleID))},
				file(sc.Lay.IdentityMpileup(sc.SampleID)))
		}},
		{Name: "identity_table", Needs: []string{"mpileup"}, Build: buildIdentityTable},
		{Name: "barcode", Needs: []string{"identity_table"}, Build: buildBarcode},
		{Name: "cnv_counts", Needs: []string{"recalibrate"}, Build: buildWindowCounts},
	}
}

func buildIdentityTable(sc *SampleContext) *step.Step {
	return &step.Step{
		Name:     "identity_table",
		SampleID: sc.SampleID,
		RunID:    sc.RunID,
		Needs:    []step.Artifact{file(sc.Lay.IdentityMpileup(sc.SampleID))},
		Outputs:  []step.Artifact{file(sc.Lay.IdentityTable(sc.SampleID))},
		Events:   sc.Events,
		Retries:  1,
		Action: func(ctx context.Context) bool {
			in, err := os.Open(sc.Lay.IdentityMpileup(sc.SampleID))
			if err != nil {
				return sc.fail("identity_table", err)
			}
			recs, err := identity.ParseMpileup(in)
			_ = in.Close()
			if err != nil {
				return sc.fail("identity_table", err)
			}
			out, err := os.Create(sc.Lay.IdentityTable(sc.SampleID))
			if err != nil {
				return sc.fail("identity_table", err)
			}
			if err := identity.WriteTable(out, recs); err != nil {
				_ = out.Close()
				return sc.fail("identity_table", err)
			}
			return sc.ok("identity_table", out.Close())
		},
	}
}

func buildBarcode(sc *SampleContext) *step.Step {
	return &step.Step{
		Name:     "barcode",
		SampleID: sc.SampleID,
		RunID:    sc.RunID,
		Needs:    []step.Artifact{file(sc.Lay.IdentityTable(sc.SampleID))},
		Outputs: []step.Artifact{
			file(sc.Lay.FullIdentity(sc.SampleID)),
			file(sc.Lay.BarcodeFile(sc.SampleID)),
		},
		Events:  sc.Events,
		Retries: 1,
		Action: func(ctx context.Context) bool {
			in, err := os.Open(sc.Lay.IdentityTable(sc.SampleID))
			if err != nil {
				return sc.fail("barcode", err)
			}
			recs, err := identity.ReadTable(in)
			_ = in.Close()
			if err != nil {
				return sc.fail("barcode", err)
			}
			codes, err := identity.Default.Score(recs)
			if err != nil {
				return sc.fail("barcode", err)
			}
			full, err := os.Create(sc.Lay.FullIdentity(sc.SampleID))
			if err != nil {
				return sc.fail("barcode", err)
			}
			if err := identity.Default.WriteFullTable(full, codes); err != nil {
				_ = full.Close()
				return sc.fail("barcode", err)
			}
			if err := full.Close(); err != nil {
				return sc.fail("barcode", err)
			}
			barcode, err := identity.Default.Barcode(recs)
			if err != nil {
				return sc.fail("barcode", err)
			}
			sc.Events.Log(fmt.Sprintf("barcode for %s is %s", sc.SampleID, barcode),
				eventlog.Info, "barcode", sc.SampleID, sc.RunID)
			return sc.ok("barcode",
				os.WriteFile(sc.Lay.BarcodeFile(sc.SampleID), []byte(barcode+"\n"), 0666))
		},
	}
}

func buildWindowCounts(sc *SampleContext) *step.Step {
	return &step.Step{
		Name:     "cnv_counts",
		SampleID: sc.SampleID,
		RunID:    sc.RunID,
		Needs: []step.Artifact{
			bam(sc.Lay.RecalBAM(sc.SampleID)),
			file(sc.Lay.RecalBAI(sc.SampleID)),
		},
		Outputs: []step.Artifact{file(sc.Lay.CountsFile(sc.SampleID))},
		Events:  sc.Events,
		Retries: 1,
		Action: func(ctx context.Context) bool {
			windows, err := count.ReadWindowsFile(sc.Cfg.WindowBED)
			if err != nil {
				return sc.fail("cnv_counts", err)
			}
			counts, err := count.Extract(
				sc.Lay.RecalBAM(sc.SampleID), sc.Lay.RecalBAI(sc.SampleID), windows)
			if err != nil {
				return sc.fail("cnv_counts", err)
			}
			out, err := os.Create(sc.Lay.CountsFile(sc.SampleID))
			if err != nil {
				return sc.fail("cnv_counts", err)
			}
			if err := count.WriteCounts(out, sc.SampleID, windows, counts); err != nil {
				_ = out.Close()
				return sc.fail("cnv_counts", err)
			}
			return sc.ok("cnv_counts", out.Close())
		},
	}
}

// fail logs an in-process action error and reports failure.
func (sc *SampleContext) fail(program string, err error) bool {
	sc.Events.Log(err.Error(), eventlog.Error, program, sc.SampleID, sc.RunID)
	return false
}

// ok reports success unless the final close/write errored.
func (sc *SampleContext) ok(program string, err error) bool {
	if err != nil {
		return sc.fail(program, err)
	}
	return true
}

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

// Per-tool command construction. Everything that knows a wrapped tool's
// syntax lives here; the stage definitions and the execution core consume
// only runner.Invocation values.

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/medgenome/panelpipe/runner"
)

func (sc *SampleContext) tool(name, exe string) runner.Tool {
	return runner.Tool{Name: name, Exe: exe}
}

func (sc *SampleContext) bwaAlign(fastqs []string) runner.Invocation {
	t := sc.tool("bwa_align", sc.Cfg.Tools.BWA)
	return t.Shell("align reads", sc.SampleID, sc.RunID,
		"mem -t %d %s %s | %s sort -o %s - && %s index %s",
		sc.Cfg.AlignThreads, sc.Cfg.Reference, strings.Join(fastqs, " "),
		sc.Cfg.Tools.Samtools, sc.Lay.AlignedBAM(sc.SampleID),
		sc.Cfg.Tools.Samtools, sc.Lay.AlignedBAM(sc.SampleID))
}

func (sc *SampleContext) markDuplicates() runner.Invocation {
	t := sc.tool("dedup", sc.Cfg.Tools.Picard)
	return t.Shell("mark duplicates", sc.SampleID, sc.RunID,
		"MarkDuplicates INPUT=%s OUTPUT=%s METRICS_FILE=%s CREATE_INDEX=true QUIET=true",
		sc.Lay.AlignedBAM(sc.SampleID), sc.Lay.DedupBAM(sc.SampleID), sc.Lay.DedupMetrics(sc.SampleID))
}

func (sc *SampleContext) baseRecalibrator() runner.Invocation {
	t := sc.tool("recalibration1", sc.Cfg.Tools.GATK)
	return t.Shell("compute recalibration table", sc.SampleID, sc.RunID,
		"BaseRecalibrator -R %s -I %s --known-sites %s -L %s -O %s",
		sc.Cfg.Reference, sc.Lay.DedupBAM(sc.SampleID), sc.Cfg.KnownSites,
		sc.Cfg.BED[sc.SampleID], sc.Lay.RecalTable(sc.SampleID))
}

func (sc *SampleContext) applyBQSR() runner.Invocation {
	t := sc.tool("recalibrate", sc.Cfg.Tools.GATK)
	return t.Shell("apply recalibration", sc.SampleID, sc.RunID,
		"ApplyBQSR -R %s -I %s --bqsr-recal-file %s -O %s && %s index %s",
		sc.Cfg.Reference, sc.Lay.DedupBAM(sc.SampleID), sc.Lay.RecalTable(sc.SampleID),
		sc.Lay.RecalBAM(sc.SampleID), sc.Cfg.Tools.Samtools, sc.Lay.RecalBAM(sc.SampleID))
}

func (sc *SampleContext) gatkCaller() runner.Invocation {
	t := sc.tool("variants_GATK", sc.Cfg.Tools.GATK)
	return t.Shell("call variants with GATK", sc.SampleID, sc.RunID,
		"HaplotypeCaller -R %s -I %s -O %s -L %s -ip 2 -A StrandBiasBySample",
		sc.Cfg.Reference, sc.Lay.RecalBAM(sc.SampleID), sc.Lay.GATKVcf(sc.SampleID),
		sc.Cfg.BED[sc.SampleID])
}

func (sc *SampleContext) gatk3Caller() runner.Invocation {
	t := sc.tool("variants_GATK3", sc.Cfg.Tools.GATK3)
	return t.Shell("call variants with GATK3", sc.SampleID, sc.RunID,
		"-T HaplotypeCaller -R %s -I %s -o %s -L %s -ip 2",
		sc.Cfg.Reference, sc.Lay.RecalBAM(sc.SampleID), sc.Lay.GATK3Vcf(sc.SampleID),
		sc.Cfg.BED[sc.SampleID])
}

func (sc *SampleContext) freebayesCaller() runner.Invocation {
	t := sc.tool("variants_freebayes", sc.Cfg.Tools.Freebayes)
	return t.Shell("call variants with freebayes", sc.SampleID, sc.RunID,
		"-f %s -t %s %s > %s",
		sc.Cfg.Reference, sc.Cfg.BED[sc.SampleID], sc.Lay.RecalBAM(sc.SampleID),
		sc.Lay.FreebayesRawVcf(sc.SampleID))
}

func (sc *SampleContext) picardSortVcf() runner.Invocation {
	t := sc.tool("picard_sort", sc.Cfg.Tools.Picard)
	return t.Shell("sort freebayes VCF", sc.SampleID, sc.RunID,
		"SortVcf I=%s O=%s QUIET=true",
		sc.Lay.FreebayesRawVcf(sc.SampleID), sc.Lay.FreebayesSortedVcf(sc.SampleID))
}

func (sc *SampleContext) octopusCaller() runner.Invocation {
	t := sc.tool("variants_octopus", sc.Cfg.Tools.Octopus)
	return t.Shell("call variants with octopus", sc.SampleID, sc.RunID,
		"-R %s -I %s -t %s -o %s",
		sc.Cfg.Reference, sc.Lay.RecalBAM(sc.SampleID), sc.Cfg.BED[sc.SampleID],
		sc.Lay.OctopusVcf(sc.SampleID))
}

func (sc *SampleContext) combineVariants() runner.Invocation {
	t := sc.tool("vcf_merge", sc.Cfg.Tools.GATK3)
	return t.Shell("merge caller VCFs", sc.SampleID, sc.RunID,
		"-T CombineVariants -R %s --variant:gatk %s --variant:gatk3 %s --variant:freebayes %s --variant:octopus %s -o %s -genotypeMergeOptions PRIORITIZE -priority gatk,gatk3,freebayes,octopus",
		sc.Cfg.Reference, sc.Lay.GATKVcf(sc.SampleID), sc.Lay.GATK3Vcf(sc.SampleID),
		sc.Lay.FreebayesVcf(sc.SampleID), sc.Lay.OctopusVcf(sc.SampleID),
		sc.Lay.MergedVcf(sc.SampleID))
}

func (sc *SampleContext) snpEffAnnotate() runner.Invocation {
	t := sc.tool("snpEff", sc.Cfg.Tools.SnpEff)
	return t.Shell("annotate merged VCF", sc.SampleID, sc.RunID,
		"%s %s > %s",
		sc.Cfg.SnpEffGenome, sc.Lay.MergedVcf(sc.SampleID), sc.Lay.AnnotatedVcf(sc.SampleID))
}

func (sc *SampleContext) hsMetrics(bed, out string) runner.Invocation {
	t := sc.tool("picard_hs_metrics", sc.Cfg.Tools.Picard)
	return t.Shell("collect HS metrics", sc.SampleID, sc.RunID,
		"CollectHsMetrics I=%s O=%s R=%s BAIT_INTERVALS=%s TARGET_INTERVALS=%s QUIET=true",
		sc.Lay.RecalBAM(sc.SampleID), out, sc.Cfg.Reference, sc.Cfg.Bait, bed)
}

func (sc *SampleContext) coverageMetrics(bed, out, perBase string) runner.Invocation {
	t := sc.tool("picard_coverage", sc.Cfg.Tools.Picard)
	return t.Shell("collect per-base coverage", sc.SampleID, sc.RunID,
		"CollectHsMetrics I=%s O=%s R=%s BAIT_INTERVALS=%s TARGET_INTERVALS=%s PER_BASE_COVERAGE=%s QUIET=true",
		sc.Lay.RecalBAM(sc.SampleID), out, sc.Cfg.Reference, sc.Cfg.Bait, bed, perBase)
}

func (sc *SampleContext) yieldMetrics() runner.Invocation {
	t := sc.tool("picard_yield", sc.Cfg.Tools.Picard)
	return t.Shell("collect yield metrics", sc.SampleID, sc.RunID,
		"CollectQualityYieldMetrics I=%s O=%s QUIET=true",
		sc.Lay.RecalBAM(sc.SampleID), sc.Lay.YieldOut(sc.SampleID))
}

func (sc *SampleContext) alignMetrics() runner.Invocation {
	t := sc.tool("picard_align_metrics", sc.Cfg.Tools.Picard)
	return t.Shell("collect alignment metrics", sc.SampleID, sc.RunID,
		"CollectAlignmentSummaryMetrics I=%s O=%s R=%s QUIET=true",
		sc.Lay.RecalBAM(sc.SampleID), sc.Lay.AlignMetricsOut(sc.SampleID), sc.Cfg.Reference)
}

func (sc *SampleContext) identityMpileup() runner.Invocation {
	t := sc.tool("mpileup", sc.Cfg.Tools.Samtools)
	return t.Shell("pile up identity loci", sc.SampleID, sc.RunID,
		"mpileup -l %s %s > %s",
		sc.Cfg.IdentityBED, sc.Lay.RecalBAM(sc.SampleID), sc.Lay.IdentityMpileup(sc.SampleID))
}

// editFreebayesVCF rewrites the sorted freebayes VCF with the sample column
// renamed to the sample id. Freebayes emits the name "unknown" when the BAM
// read group carries no sample tag, which breaks the merge's column
// matching.
func editFreebayesVCF(src, dst, sampleID string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() // nolint: errcheck
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#CHROM\t") {
			fields := strings.Split(line, "\t")
			if len(fields) >= 10 {
				fields[9] = sampleID
				line = strings.Join(fields, "\t")
			}
		}
		if _, err := w.WriteString(line); err != nil {
			_ = out.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = out.Close()
			return err
		}
	}
	if err := sc.Err(); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "edit freebayes VCF %s", src)
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

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
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Layout maps the conventional run directory structure:
// <datadir>/BAM/<sample>/{BAM,VCF,QC,Metrics}/ per sample, run-level
// artifacts at the top. Intermediate BAMs are never renamed over their
// inputs; each stage owns a distinctly named artifact, so the existence
// checks stay meaningful across reruns.
type Layout struct {
	Datadir string
}

// RunID is the run identifier used in events: the run directory's base name.
func (l Layout) RunID() string { return filepath.Base(l.Datadir) }

func (l Layout) SampleDir(sample string) string {
	return filepath.Join(l.Datadir, "BAM", sample)
}
func (l Layout) BamDir(sample string) string     { return filepath.Join(l.SampleDir(sample), "BAM") }
func (l Layout) VcfDir(sample string) string     { return filepath.Join(l.SampleDir(sample), "VCF") }
func (l Layout) QCDir(sample string) string      { return filepath.Join(l.SampleDir(sample), "QC") }
func (l Layout) MetricsDir(sample string) string { return filepath.Join(l.SampleDir(sample), "Metrics") }

// Provision creates the per-sample directory tree.
func (l Layout) Provision(sample string) error {
	for _, dir := range []string{
		l.BamDir(sample), l.VcfDir(sample), l.QCDir(sample), l.MetricsDir(sample),
	} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return err
		}
	}
	return nil
}

// Per-sample BAM-chain artifacts.
func (l Layout) AlignedBAM(sample string) string {
	return filepath.Join(l.BamDir(sample), sample+".bam")
}
func (l Layout) AlignedBAI(sample string) string { return l.AlignedBAM(sample) + ".bai" }
func (l Layout) DedupBAM(sample string) string {
	return filepath.Join(l.BamDir(sample), sample+".dedup.bam")
}
func (l Layout) DedupMetrics(sample string) string {
	return filepath.Join(l.BamDir(sample), sample+".metrics.txt")
}
func (l Layout) RecalTable(sample string) string {
	return filepath.Join(l.BamDir(sample), "recal_data.table")
}
func (l Layout) RecalBAM(sample string) string {
	return filepath.Join(l.BamDir(sample), sample+".recal_reads.bam")
}
func (l Layout) RecalBAI(sample string) string { return l.RecalBAM(sample) + ".bai" }

// Per-sample VCF artifacts.
func (l Layout) GATKVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_GATK.vcf")
}
func (l Layout) GATK3Vcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_GATK3.vcf")
}
func (l Layout) FreebayesRawVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_freebayes_raw.vcf")
}
func (l Layout) FreebayesSortedVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_freebayes_sorted.vcf")
}
func (l Layout) FreebayesVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_freebayes.vcf")
}
func (l Layout) OctopusVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_octopus.vcf")
}
func (l Layout) MergedVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_merged.vcf")
}
func (l Layout) AnnotatedVcf(sample string) string {
	return filepath.Join(l.VcfDir(sample), sample+"_merged_ann.vcf")
}

// Per-sample QC, metrics and identity artifacts.
func (l Layout) NuclOut(sample string) string {
	return filepath.Join(l.MetricsDir(sample), sample+".nucl.out")
}
func (l Layout) NuclPanelOut(sample string) string {
	return filepath.Join(l.MetricsDir(sample), sample+".panel.nucl.out")
}
func (l Layout) YieldOut(sample string) string {
	return filepath.Join(l.MetricsDir(sample), sample+".yield.out")
}
func (l Layout) HsMetricsOut(sample string) string {
	return filepath.Join(l.MetricsDir(sample), sample+".hs_metrics.out")
}
func (l Layout) HsMetricsPanelOut(sample string) string {
	return filepath.Join(l.MetricsDir(sample), sample+".panel.hs_metrics.out")
}
func (l Layout) AlignMetricsOut(sample string) string {
	return filepath.Join(l.MetricsDir(sample), sample+".align_metrics.out")
}
func (l Layout) IdentityMpileup(sample string) string {
	return filepath.Join(l.BamDir(sample), "identity.mpileup")
}
func (l Layout) IdentityTable(sample string) string {
	return filepath.Join(l.SampleDir(sample), "identity.txt")
}
func (l Layout) FullIdentity(sample string) string {
	return filepath.Join(l.SampleDir(sample), sample+".identity_full.txt")
}
func (l Layout) BarcodeFile(sample string) string {
	return filepath.Join(l.SampleDir(sample), sample+".barcode.txt")
}
func (l Layout) CountsFile(sample string) string {
	return filepath.Join(l.SampleDir(sample), sample+".cnv")
}

// Run-level artifacts.
func (l Layout) RunIdentity() string   { return filepath.Join(l.Datadir, "identity.txt") }
func (l Layout) RunBarcodes() string   { return filepath.Join(l.Datadir, "barcodes.txt") }
func (l Layout) CNVCounts() string     { return filepath.Join(l.Datadir, "cnv_counts.txt") }
func (l Layout) CNVSum() string        { return filepath.Join(l.Datadir, "cnv_sum.txt") }
func (l Layout) CNVMean() string       { return filepath.Join(l.Datadir, "cnv_mean.txt") }
func (l Layout) CNVXLinked() string    { return filepath.Join(l.Datadir, "cnv_mean_xlinked.txt") }
func (l Layout) CNVXLinkedCross() string {
	return filepath.Join(l.Datadir, "cnv_mean_xlinked_cross.txt")
}
func (l Layout) Uniformity() string { return filepath.Join(l.Datadir, "uniformity.txt") }

// Fastqs returns the sample's input FASTQ files in name order.
func (l Layout) Fastqs(sample string) ([]string, error) {
	fastqs, err := filepath.Glob(filepath.Join(l.Datadir, sample+"*.fastq.gz"))
	if err != nil {
		return nil, err
	}
	sort.Strings(fastqs)
	return fastqs, nil
}

// DiscoverSamples lists sample ids from the FASTQ files in the run
// directory. A sample id is the file name up to the first underscore.
func (l Layout) DiscoverSamples() ([]string, error) {
	fastqs, err := filepath.Glob(filepath.Join(l.Datadir, "*.fastq.gz"))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var samples []string
	for _, fq := range fastqs {
		id := strings.SplitN(filepath.Base(fq), "_", 2)[0]
		if !seen[id] {
			seen[id] = true
			samples = append(samples, id)
		}
	}
	sort.Strings(samples)
	return samples, nil
}

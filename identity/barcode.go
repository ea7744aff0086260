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

package identity

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
)

// LocusCode is the scored genotype of one locus.
type LocusCode struct {
	Locus    Locus
	Record   PileupRecord
	FullCode string
	Class    Class
}

// nucleotideCode returns the single-character code for one nucleotide: the
// letter when its fraction of the total depth exceeds the threshold, else
// '0'. Zero depth yields '0' for every nucleotide.
func nucleotideCode(count, total int, letter byte, threshold float64) byte {
	if total > 0 && float64(count)/float64(total) > threshold {
		return letter
	}
	return '0'
}

// FullCode builds a locus's full code: the gene/exon label followed by the
// four nucleotide codes in fixed A,C,G,T order. "EGFR_E40C0T" reads as C and
// T both present, a heterozygous pattern.
func (c Config) FullCode(locus Locus, rec PileupRecord) string {
	total := rec.Total()
	var b strings.Builder
	b.WriteString(locus.Label)
	b.WriteByte(nucleotideCode(rec.A, total, 'A', c.Threshold))
	b.WriteByte(nucleotideCode(rec.C, total, 'C', c.Threshold))
	b.WriteByte(nucleotideCode(rec.G, total, 'G', c.Threshold))
	b.WriteByte(nucleotideCode(rec.T, total, 'T', c.Threshold))
	full := b.String()
	// No coverage degenerates to the bare label, which the code table maps
	// to the no-call class.
	if strings.HasSuffix(full, "0000") {
		return locus.Label
	}
	return full
}

// ClassOf resolves a full code against the closed lookup table. An unknown
// code means an unexpected allele combination at an identity locus; it is
// surfaced as an error for human review, never guessed.
func (c Config) ClassOf(full string) (Class, error) {
	class, ok := c.Codes[full]
	if !ok {
		return "", errors.E(errors.Invalid, fmt.Sprintf("identity: unknown genotype code %q", full))
	}
	return class, nil
}

// Score resolves every locus against the pileup records, which are matched by
// genomic position. Every configured locus must be present.
func (c Config) Score(recs []PileupRecord) ([]LocusCode, error) {
	byPos := make(map[int]PileupRecord, len(recs))
	for _, rec := range recs {
		byPos[rec.Position] = rec
	}
	codes := make([]LocusCode, 0, len(c.Loci))
	for _, locus := range c.Loci {
		rec, ok := byPos[locus.Position]
		if !ok {
			return nil, errors.E(errors.NotExist,
				fmt.Sprintf("identity: no pileup record for locus %s at %d", locus.Label, locus.Position))
		}
		full := c.FullCode(locus, rec)
		class, err := c.ClassOf(full)
		if err != nil {
			return nil, err
		}
		codes = append(codes, LocusCode{Locus: locus, Record: rec, FullCode: full, Class: class})
	}
	return codes, nil
}

// Barcode builds the sample fingerprint: one class digit per locus,
// concatenated in the configured permutation order. The result always has
// exactly len(Loci) characters.
func (c Config) Barcode(recs []PileupRecord) (string, error) {
	codes, err := c.Score(recs)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, i := range c.Permutation {
		b.WriteString(string(codes[i].Class))
	}
	return b.String(), nil
}

// WriteFullTable writes the expanded identity report: counts, fractions,
// per-nucleotide codes and the full code for every locus, in locus order.
func (c Config) WriteFullTable(w io.Writer, codes []LocusCode) error {
	if _, err := fmt.Fprintln(w, "Chromosome\tPosition\tA\tC\tG\tT\tID\tHGVS\tTotal reads\tpcA\tpcC\tpcG\tpcT\tcodeA\tcodeC\tcodeG\tcodeT\tFull code"); err != nil {
		return err
	}
	for _, lc := range codes {
		rec := lc.Record
		total := rec.Total()
		frac := func(n int) float64 {
			if total == 0 {
				return 0
			}
			return float64(n) / float64(total)
		}
		code := func(n int, letter byte) byte {
			return nucleotideCode(n, total, letter, c.Threshold)
		}
		_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%d\t%g\t%g\t%g\t%g\t%c\t%c\t%c\t%c\t%s\n",
			rec.Chrom, rec.Position, rec.A, rec.C, rec.G, rec.T,
			lc.Locus.Label, lc.Locus.HGVS, total,
			frac(rec.A), frac(rec.C), frac(rec.G), frac(rec.T),
			code(rec.A, 'A'), code(rec.C, 'C'), code(rec.G, 'G'), code(rec.T, 'T'),
			lc.FullCode)
		if err != nil {
			return err
		}
	}
	return nil
}

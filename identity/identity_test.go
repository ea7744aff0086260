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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountNucleotides(t *testing.T) {
	a, c, g, tt := CountNucleotides("AaCcGgTt")
	assert.Equal(t, [4]int{2, 2, 2, 2}, [4]int{a, c, g, tt})

	// Match markers, read starts/ends and quality markers must not count.
	a, c, g, tt = CountNucleotides("..,,^].$**")
	assert.Equal(t, [4]int{0, 0, 0, 0}, [4]int{a, c, g, tt})

	a, _, _, _ = CountNucleotides("aA.A,")
	assert.Equal(t, 3, a)
}

func TestParseMpileup(t *testing.T) {
	input := "chr7\t55214348\tC\t42\t.,CcC\tIIIII\n" +
		"chr2\t29416481\tT\t10\tTTtt\tIIII\n"
	recs, err := ParseMpileup(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, PileupRecord{Chrom: "chr7", Position: 55214348, C: 3}, recs[0])
	assert.Equal(t, PileupRecord{Chrom: "chr2", Position: 29416481, T: 4}, recs[1])

	_, err = ParseMpileup(strings.NewReader("chr7\t55214348\tC\n"))
	assert.Error(t, err)
}

func TestFullCode(t *testing.T) {
	egfr := Locus{Label: "EGFR_E4", Position: 55214348}
	tests := []struct {
		rec  PileupRecord
		want string
	}{
		{PileupRecord{C: 10}, "EGFR_E40C00"},
		{PileupRecord{C: 5, T: 5}, "EGFR_E40C0T"},
		// Exactly at the threshold is excluded; the fraction must exceed it.
		{PileupRecord{C: 90, T: 10}, "EGFR_E40C00"},
		{PileupRecord{C: 89, T: 11}, "EGFR_E40C0T"},
		{PileupRecord{}, "EGFR_E4"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, Default.FullCode(egfr, test.rec), "rec %+v", test.rec)
	}
}

// refPatterns gives a homozygous-reference nucleotide per locus label.
var refPatterns = map[string]PileupRecord{
	"ALK_E29":   {T: 30},
	"BARD1_E4":  {C: 30},
	"XPC_E16":   {G: 30},
	"APC_E16":   {G: 30},
	"EGFR_E4":   {C: 30},
	"MET_E20":   {C: 30},
	"MET_E21":   {G: 30},
	"WRN_E26":   {G: 30},
	"NBN_E10":   {A: 30},
	"RECQL4_E3": {T: 30},
	"PTCH1_E23": {G: 30},
	"POLE_E45":  {T: 30},
	"BRCA2_E17": {T: 30},
	"FANCI_E37": {T: 30},
	"FANCA_E16": {C: 30},
	"BRIP1_E19": {A: 30},
}

func refRecords() []PileupRecord {
	recs := make([]PileupRecord, 0, len(Default.Loci))
	for _, locus := range Default.Loci {
		rec := refPatterns[locus.Label]
		rec.Chrom = "chrT"
		rec.Position = locus.Position
		recs = append(recs, rec)
	}
	return recs
}

func TestBarcodeAllReference(t *testing.T) {
	barcode, err := Default.Barcode(refRecords())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("1", 16), barcode)
}

func TestBarcodePermutationOrder(t *testing.T) {
	recs := refRecords()
	// Loci[0] (ALK_E29) heterozygous, Loci[1] (BARD1_E4) homozygous alt.
	recs[0] = PileupRecord{Chrom: "chrT", Position: Default.Loci[0].Position, C: 15, T: 15}
	recs[1] = PileupRecord{Chrom: "chrT", Position: Default.Loci[1].Position, G: 30}

	barcode, err := Default.Barcode(recs)
	require.NoError(t, err)
	// The permutation places locus 0 first and locus 1 third.
	assert.Equal(t, "213"+strings.Repeat("1", 13), barcode)
}

func TestBarcodeNoCoverage(t *testing.T) {
	recs := refRecords()
	recs[0] = PileupRecord{Chrom: "chrT", Position: Default.Loci[0].Position}
	codes, err := Default.Score(recs)
	require.NoError(t, err)
	assert.Equal(t, Class("5"), codes[0].Class)
}

func TestScoreUnknownCode(t *testing.T) {
	recs := refRecords()
	// A+G at EGFR is not a configured allele combination.
	recs[4] = PileupRecord{Chrom: "chrT", Position: Default.Loci[4].Position, A: 15, G: 15}
	_, err := Default.Score(recs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown genotype code")
}

func TestScoreMissingLocus(t *testing.T) {
	_, err := Default.Score(refRecords()[1:])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALK_E29")
}

func TestWriteFullTable(t *testing.T) {
	codes, err := Default.Score(refRecords())
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Default.WriteFullTable(&buf, codes))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 17)
	assert.True(t, strings.HasPrefix(lines[0], "Chromosome\tPosition\t"))
	assert.Contains(t, lines[1], "ALK_E29000T")
	assert.Contains(t, lines[1], "c.4472A>G")
}

func TestTableRoundTrip(t *testing.T) {
	recs := refRecords()
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, recs))
	got, err := ReadTable(&buf)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestFindDuplicates(t *testing.T) {
	flagged := FindDuplicates(map[string]string{
		"S1": "1111111111111111",
		"S2": "1111111111111111",
		"S3": "2111111111111111",
	})
	assert.True(t, flagged["S1"])
	assert.True(t, flagged["S2"])
	assert.False(t, flagged["S3"])
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("1111", "1111"))
	assert.Equal(t, 2, Distance("1121", "1212"))
	assert.Equal(t, -1, Distance("111", "1111"))
}

func TestFindNearDuplicates(t *testing.T) {
	pairs := FindNearDuplicates(map[string]string{
		"S1": "1111111111111111",
		"S2": "1111111111111112", // one locus off S1
		"S3": "1111111111111111", // exact duplicate of S1, not reported here
		"S4": "3333333333333333",
	}, 1)
	require.Len(t, pairs, 2)
	assert.Equal(t, NearPair{SampleA: "S1", SampleB: "S2", Distance: 1}, pairs[0])
	assert.Equal(t, NearPair{SampleA: "S2", SampleB: "S3", Distance: 1}, pairs[1])
}

func TestBarcodesRoundTrip(t *testing.T) {
	in := map[string]string{"S2": "213", "S1": "111"}
	var buf bytes.Buffer
	require.NoError(t, WriteBarcodes(&buf, in))
	// Sorted by sample id.
	assert.Equal(t, "S1\t111\nS2\t213\n", buf.String())
	got, err := ReadBarcodes(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

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
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteBarcodes writes the run-level fingerprint file: one "sample TAB
// barcode" line per sample, sorted by sample id.
func WriteBarcodes(w io.Writer, barcodes map[string]string) error {
	samples := make([]string, 0, len(barcodes))
	for s := range barcodes {
		samples = append(samples, s)
	}
	sort.Strings(samples)
	for _, s := range samples {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", s, barcodes[s]); err != nil {
			return err
		}
	}
	return nil
}

// ReadBarcodes reads a file produced by WriteBarcodes.
func ReadBarcodes(r io.Reader) (map[string]string, error) {
	barcodes := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("barcodes: malformed line %q", line)
		}
		barcodes[fields[0]] = fields[1]
	}
	return barcodes, sc.Err()
}

// FindDuplicates flags every sample whose barcode is shared with at least one
// other sample. Both (or all) members of a colliding group are flagged.
func FindDuplicates(barcodes map[string]string) map[string]bool {
	counts := make(map[string]int)
	for _, code := range barcodes {
		counts[code]++
	}
	flagged := make(map[string]bool, len(barcodes))
	for sample, code := range barcodes {
		flagged[sample] = counts[code] > 1
	}
	return flagged
}

// NearPair is a pair of samples whose fingerprints differ at few loci.
type NearPair struct {
	SampleA, SampleB string
	Distance         int
}

// Distance is the Hamming distance between two fingerprints, or -1 when the
// lengths differ. Fingerprints are fixed-length digit strings, so
// substitution is the only meaningful edit.
func Distance(a, b string) int {
	if len(a) != len(b) {
		return -1
	}
	d := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// FindNearDuplicates returns sample pairs within maxDistance of each other
// but not identical, sorted by sample ids. A single-locus difference between
// two samples is a contamination or genotyping-noise signal worth review
// even when the exact-collision check passes.
func FindNearDuplicates(barcodes map[string]string, maxDistance int) []NearPair {
	samples := make([]string, 0, len(barcodes))
	for s := range barcodes {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	var pairs []NearPair
	for i, a := range samples {
		for _, b := range samples[i+1:] {
			d := Distance(barcodes[a], barcodes[b])
			if d > 0 && d <= maxDistance {
				pairs = append(pairs, NearPair{SampleA: a, SampleB: b, Distance: d})
			}
		}
	}
	return pairs
}

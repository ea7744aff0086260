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

package cnv

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
)

// Sex is a sample's declared sex, needed because sex-linked genes have a
// different expected dosage per sex.
type Sex int

const (
	Unknown Sex = iota
	Female
	Male
)

// ParseSex accepts the declared-sex spellings found in run configurations.
func ParseSex(s string) Sex {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "F", "FEMALE":
		return Female
	case "M", "MALE":
		return Male
	}
	return Unknown
}

// SplitSexes returns the male and female sample ids present in the matrix, in
// matrix column order.
func SplitSexes(samples []string, sexes map[string]Sex) (males, females []string) {
	for _, s := range samples {
		switch sexes[s] {
		case Male:
			males = append(males, s)
		case Female:
			females = append(females, s)
		}
	}
	return males, females
}

// XLinkedGenes is the sex-linked gene set of the panels; windows whose labels
// mention one of these genes take the stratified normalization path.
var XLinkedGenes = []string{"FANCB", "DMD", "EMD", "FHL1", "GLA", "LAMP2", "TAZ", "GPC3"}

func windowIsXLinked(window string, genes []string) bool {
	for _, g := range genes {
		if strings.Contains(window, g) {
			return true
		}
	}
	return false
}

// Normalized holds the two-pass normalization result for a run.
type Normalized struct {
	// Ratio is the inter-sample normalized matrix; 1.0 is expected copy
	// number.
	Ratio *Matrix
	// Sum is the intermediate intra-sample normalized matrix (columns sum
	// to 1).
	Sum *Matrix
	// Std, StdF and StdM are per-window standard deviations across the
	// whole cohort and the declared-female/-male subsets. Subsets smaller
	// than two samples yield NaN.
	Std, StdF, StdM []float64
}

// Normalize runs intra-sample then inter-sample normalization and the
// per-window deviation statistics.
func Normalize(m *Matrix, sexes map[string]Sex) *Normalized {
	sum := intraNormalize(m)
	ratio := interNormalize(sum)

	males, females := SplitSexes(m.Samples, sexes)
	maleCols := columnSet(m, males)
	femaleCols := columnSet(m, females)

	n := &Normalized{Ratio: ratio, Sum: sum}
	n.Std = make([]float64, len(m.Windows))
	n.StdF = make([]float64, len(m.Windows))
	n.StdM = make([]float64, len(m.Windows))
	for i := range m.Windows {
		row := ratio.Counts[i]
		n.Std[i] = sampleStd(row, nil)
		n.StdF[i] = sampleStd(row, femaleCols)
		n.StdM[i] = sampleStd(row, maleCols)
	}
	return n
}

// intraNormalize divides each column by its own sum, correcting for total
// sequencing depth differences between samples.
func intraNormalize(m *Matrix) *Matrix {
	sums := make([]float64, len(m.Samples))
	for _, row := range m.Counts {
		for j, v := range row {
			sums[j] += v
		}
	}
	out := cloneShape(m)
	for i, row := range m.Counts {
		for j, v := range row {
			if sums[j] != 0 {
				out.Counts[i][j] = v / sums[j]
			}
		}
	}
	return out
}

// interNormalize divides each row by its mean across samples, expressing
// each cell as a ratio to the cohort average at that window.
func interNormalize(m *Matrix) *Matrix {
	out := cloneShape(m)
	for i, row := range m.Counts {
		mean := rowMean(row, nil)
		for j, v := range row {
			if mean != 0 {
				out.Counts[i][j] = v / mean
			}
		}
	}
	return out
}

func cloneShape(m *Matrix) *Matrix {
	out := &Matrix{
		Windows: m.Windows,
		Samples: m.Samples,
		Counts:  make([][]float64, len(m.Counts)),
	}
	for i := range m.Counts {
		out.Counts[i] = make([]float64, len(m.Counts[i]))
	}
	return out
}

// columnSet maps sample names to a column index set; nil means all columns.
func columnSet(m *Matrix, samples []string) map[int]bool {
	if samples == nil {
		return nil
	}
	set := make(map[int]bool, len(samples))
	for _, s := range samples {
		if col := m.Column(s); col >= 0 {
			set[col] = true
		}
	}
	return set
}

func rowMean(row []float64, cols map[int]bool) float64 {
	var sum float64
	var n int
	for j, v := range row {
		if cols != nil && !cols[j] {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// sampleStd is the n-1 standard deviation over the selected columns; NaN when
// fewer than two values are selected.
func sampleStd(row []float64, cols map[int]bool) float64 {
	mean := rowMean(row, cols)
	var ss float64
	var n int
	for j, v := range row {
		if cols != nil && !cols[j] {
			continue
		}
		d := v - mean
		ss += d * d
		n++
	}
	if n < 2 {
		return math.NaN()
	}
	return math.Sqrt(ss / float64(n-1))
}

// WriteNormalized writes the cnv_mean table: the ratio matrix plus the std,
// stdF and stdM columns.
func (n *Normalized) WriteNormalized(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "Location")
	for _, s := range n.Ratio.Samples {
		fmt.Fprintf(bw, "\t%s", s)
	}
	fmt.Fprintln(bw, "\tstd\tstdF\tstdM")
	for i, win := range n.Ratio.Windows {
		fmt.Fprint(bw, win)
		for _, v := range n.Ratio.Counts[i] {
			fmt.Fprintf(bw, "\t%s", formatFloat(v))
		}
		fmt.Fprintf(bw, "\t%s\t%s\t%s\n", formatFloat(n.Std[i]), formatFloat(n.StdF[i]), formatFloat(n.StdM[i]))
	}
	return bw.Flush()
}

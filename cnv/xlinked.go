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
)

// SexStratified holds the X-linked normalization outputs. Within-sex ratios
// are double-normalized inside each sex group, so one sex's baseline dosage
// cannot corrupt the other's ratios; the cross table instead divides each
// sex's depth-normalized values by the other sex's per-window average.
type SexStratified struct {
	Windows       []string
	FemaleSamples []string
	MaleSamples   []string
	// Female/Male are within-sex double-normalized ratios over Windows.
	Female, Male [][]float64
	StdF, StdM   []float64
	// Cross is the cross-sex normalized matrix restricted to Windows.
	Cross *Matrix
}

// NormalizeXLinked runs the sex-stratified path over the windows of the given
// sex-linked genes. It requires at least two declared males and returns nil
// otherwise; with one male there is no male baseline to normalize within.
func NormalizeXLinked(raw, sum *Matrix, sexes map[string]Sex, genes []string) *SexStratified {
	males, females := SplitSexes(raw.Samples, sexes)
	if len(males) < 2 {
		return nil
	}

	var rows []int
	var windows []string
	for i, win := range raw.Windows {
		if windowIsXLinked(win, genes) {
			rows = append(rows, i)
			windows = append(windows, win)
		}
	}

	s := &SexStratified{
		Windows:       windows,
		FemaleSamples: females,
		MaleSamples:   males,
	}
	s.Female, s.StdF = withinSex(raw, rows, females)
	s.Male, s.StdM = withinSex(raw, rows, males)
	s.Cross = crossSex(sum, rows, windows, males, females)
	return s
}

// withinSex restricts the raw counts to the x-linked rows and one sex's
// columns, then applies the usual intra- then inter-sample normalization
// inside that group. Column sums are taken over the x-linked rows only, not
// the whole panel.
func withinSex(raw *Matrix, rows []int, samples []string) (ratios [][]float64, std []float64) {
	cols := make([]int, 0, len(samples))
	for _, s := range samples {
		if c := raw.Column(s); c >= 0 {
			cols = append(cols, c)
		}
	}
	sub := make([][]float64, len(rows))
	sums := make([]float64, len(cols))
	for i, r := range rows {
		sub[i] = make([]float64, len(cols))
		for j, c := range cols {
			v := raw.Counts[r][c]
			sub[i][j] = v
			sums[j] += v
		}
	}
	for i := range sub {
		for j := range sub[i] {
			if sums[j] != 0 {
				sub[i][j] /= sums[j]
			}
		}
	}
	std = make([]float64, len(rows))
	for i := range sub {
		mean := rowMean(sub[i], nil)
		if mean != 0 {
			for j := range sub[i] {
				sub[i][j] /= mean
			}
		}
		std[i] = sampleStd(sub[i], nil)
	}
	return sub, std
}

// crossSex re-normalizes the depth-corrected matrix per column, then divides
// male columns by the per-window female average and female columns by the
// male average, and restricts the result to the x-linked rows.
func crossSex(sum *Matrix, rows []int, windows []string, males, females []string) *Matrix {
	norm := intraNormalize(sum)
	maleCols := columnSet(norm, males)
	femaleCols := columnSet(norm, females)

	out := &Matrix{
		Windows: windows,
		Samples: norm.Samples,
		Counts:  make([][]float64, len(rows)),
	}
	for i, r := range rows {
		row := norm.Counts[r]
		avgF := rowMean(row, femaleCols)
		avgM := rowMean(row, maleCols)
		out.Counts[i] = make([]float64, len(row))
		for j, v := range row {
			switch {
			case maleCols[j] && avgF != 0:
				out.Counts[i][j] = v / avgF
			case femaleCols[j] && avgM != 0:
				out.Counts[i][j] = v / avgM
			default:
				out.Counts[i][j] = v
			}
		}
	}
	return out
}

// WriteTSV writes the combined within-sex table: female columns with stdF,
// then male columns with stdM.
func (s *SexStratified) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "Location")
	for _, c := range s.FemaleSamples {
		fmt.Fprintf(bw, "\t%s", c)
	}
	fmt.Fprint(bw, "\tstdF")
	for _, c := range s.MaleSamples {
		fmt.Fprintf(bw, "\t%s", c)
	}
	fmt.Fprintln(bw, "\tstdM")
	for i, win := range s.Windows {
		fmt.Fprint(bw, win)
		for _, v := range s.Female[i] {
			fmt.Fprintf(bw, "\t%s", formatFloat(v))
		}
		fmt.Fprintf(bw, "\t%s", formatFloat(s.StdF[i]))
		for _, v := range s.Male[i] {
			fmt.Fprintf(bw, "\t%s", formatFloat(v))
		}
		fmt.Fprintf(bw, "\t%s\n", formatFloat(s.StdM[i]))
	}
	return bw.Flush()
}

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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Panel position totals used as uniformity denominators.
const (
	CplusPositions   = 328863
	CardiacPositions = 725631
)

// PanelPositions returns the denominator for a panel name.
func PanelPositions(panel string) (int, error) {
	switch panel {
	case "Cplus":
		return CplusPositions, nil
	case "Cardiac":
		return CardiacPositions, nil
	}
	return 0, errors.Errorf("uniformity: unknown panel %q", panel)
}

// UniformityRow summarizes one sample's coverage uniformity: the fraction of
// panel positions covered at 0.2x, 0.5x and 1.0x of the sample mean, plus the
// mean itself.
type UniformityRow struct {
	Sample   string
	Frac02   float64
	Frac05   float64
	FracMean float64
	Mean     float64
}

// CoverageUniformity computes one sample's uniformity row from its per-base
// coverage table (TSV with a "coverage" column), against the panel's position
// total.
func CoverageUniformity(r io.Reader, sample string, panelPositions int) (UniformityRow, error) {
	row := UniformityRow{Sample: sample}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return row, err
		}
		return row, errors.Errorf("uniformity: empty coverage table for %s", sample)
	}
	covCol := -1
	for i, name := range strings.Split(sc.Text(), "\t") {
		if name == "coverage" {
			covCol = i
			break
		}
	}
	if covCol < 0 {
		return row, errors.Errorf("uniformity: no coverage column for %s", sample)
	}

	var cov []float64
	var sum float64
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if covCol >= len(fields) {
			return row, errors.Errorf("uniformity: short line in coverage table for %s", sample)
		}
		v, err := strconv.ParseFloat(fields[covCol], 64)
		if err != nil {
			return row, errors.Wrapf(err, "uniformity: sample %s", sample)
		}
		cov = append(cov, v)
		sum += v
	}
	if err := sc.Err(); err != nil {
		return row, err
	}
	if len(cov) == 0 {
		return row, errors.Errorf("uniformity: no coverage rows for %s", sample)
	}

	mean := sum / float64(len(cov))
	var n02, n05, nMean int
	for _, v := range cov {
		if v >= 0.2*mean {
			n02++
		}
		if v >= 0.5*mean {
			n05++
		}
		if v >= mean {
			nMean++
		}
	}
	row.Mean = mean
	row.Frac02 = float64(n02) / float64(panelPositions)
	row.Frac05 = float64(n05) / float64(panelPositions)
	row.FracMean = float64(nMean) / float64(panelPositions)
	return row, nil
}

// WriteUniformity writes the run uniformity report.
func WriteUniformity(w io.Writer, rows []UniformityRow) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Sample ID\t0.2*mean\t0.5*mean\t1.0*mean\tMean")
	for _, r := range rows {
		fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\n",
			r.Sample, formatFloat(r.Frac02), formatFloat(r.Frac05), formatFloat(r.FracMean), formatFloat(r.Mean))
	}
	return bw.Flush()
}

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

// Package cnv turns per-window, per-sample read counts into normalized
// copy-number ratios and calls. Normalization is two-pass: intra-sample
// (each column scaled to unit sum, correcting sequencing depth) then
// inter-sample (each row scaled by its cohort mean, so 1.0 is the expected
// dosage). Sex-linked windows get an additional sex-stratified pass.
package cnv

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Matrix is a dense window x sample count/ratio matrix. Windows are labeled
// by the panel's window identifiers (chromosome:gene:exon-and-coordinates);
// the window set and order are identical for every sample in a run.
type Matrix struct {
	Windows []string
	Samples []string
	// Counts is indexed [window][sample].
	Counts [][]float64
}

// Column returns the index of a sample, or -1.
func (m *Matrix) Column(sample string) int {
	for i, s := range m.Samples {
		if s == sample {
			return i
		}
	}
	return -1
}

// ReadSampleCounts parses one per-sample count file: a "Location\t<sample>"
// header followed by one "window TAB count" line per window, in panel order.
func ReadSampleCounts(r io.Reader) (windows []string, counts []float64, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, nil, err
		}
		return nil, nil, errors.New("count file is empty")
	}
	if !strings.HasPrefix(sc.Text(), "Location\t") {
		return nil, nil, errors.Errorf("count file: malformed header %q", sc.Text())
	}
	lineno := 1
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, nil, errors.Errorf("count file line %d: %d fields, want 2", lineno, len(fields))
		}
		n, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || n < 0 {
			return nil, nil, errors.Errorf("count file line %d: bad count %q", lineno, fields[1])
		}
		windows = append(windows, fields[0])
		counts = append(counts, n)
	}
	return windows, counts, sc.Err()
}

// Compile builds the run coverage matrix from per-sample count files, keyed
// sample id -> file path. Every sample must carry the identical window set in
// the identical order; a mismatch means the sample was counted against
// different target regions and is an error naming that sample.
func Compile(paths map[string]string, open func(path string) (io.ReadCloser, error)) (*Matrix, error) {
	samples := make([]string, 0, len(paths))
	for s := range paths {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	m := &Matrix{Samples: samples}
	for col, sample := range samples {
		rc, err := open(paths[sample])
		if err != nil {
			return nil, errors.Wrapf(err, "cnv: sample %s", sample)
		}
		windows, counts, err := ReadSampleCounts(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "cnv: sample %s", sample)
		}
		if col == 0 {
			m.Windows = windows
			m.Counts = make([][]float64, len(windows))
			for i := range m.Counts {
				m.Counts[i] = make([]float64, len(samples))
			}
		} else if !sameWindows(m.Windows, windows) {
			return nil, errors.Errorf("cnv: sample %s window set differs from the rest of the run", sample)
		}
		for i, n := range counts {
			m.Counts[i][col] = n
		}
	}
	return m, nil
}

func sameWindows(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// WriteTSV writes the matrix with a Location column followed by one column
// per sample.
func (m *Matrix) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "Location")
	for _, s := range m.Samples {
		fmt.Fprintf(bw, "\t%s", s)
	}
	fmt.Fprintln(bw)
	for i, win := range m.Windows {
		fmt.Fprint(bw, win)
		for _, v := range m.Counts[i] {
			fmt.Fprintf(bw, "\t%s", formatFloat(v))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

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

// Package count extracts per-window read counts from an indexed BAM, the raw
// input of CNV normalization. Counting is in-process: a window's count is the
// number of alignment records overlapping it, matching the semantics the CNV
// thresholds were calibrated against.
package count

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"
)

// Window is one row of a panel window BED: a named counting interval.
// Start/End are 0-based half-open, as in BED.
type Window struct {
	Chrom string
	Start int
	End   int
	Name  string
}

// ReadWindows parses a window BED (chrom, start, end, name) preserving file
// order; the name column is the window identifier used across the CNV
// tables.
func ReadWindows(r io.Reader) ([]Window, error) {
	var windows []Window
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "track") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, errors.Errorf("window BED line %d: %d fields, want at least 4", lineno, len(fields))
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "window BED line %d: start", lineno)
		}
		end, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, errors.Wrapf(err, "window BED line %d: end", lineno)
		}
		if end < start {
			return nil, errors.Errorf("window BED line %d: end %d before start %d", lineno, end, start)
		}
		windows = append(windows, Window{Chrom: fields[0], Start: start, End: end, Name: fields[3]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}

// ReadWindowsFile is ReadWindows over a file path.
func ReadWindowsFile(path string) ([]Window, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	return ReadWindows(f)
}

// Extract counts records overlapping every window of a coordinate-sorted,
// indexed BAM. The returned slice is parallel to windows.
func Extract(bamPath, baiPath string, windows []Window) ([]int, error) {
	f, err := os.Open(bamPath)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	br, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "count: open %s", bamPath)
	}
	defer br.Close() // nolint: errcheck

	idxf, err := os.Open(baiPath)
	if err != nil {
		return nil, err
	}
	idx, err := bam.ReadIndex(idxf)
	_ = idxf.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "count: index %s", baiPath)
	}

	refs := make(map[string]*sam.Reference)
	for _, ref := range br.Header().Refs() {
		refs[ref.Name()] = ref
	}

	counts := make([]int, len(windows))
	for i, win := range windows {
		ref, ok := refs[win.Chrom]
		if !ok {
			return nil, errors.Errorf("count: window %s references unknown contig %s", win.Name, win.Chrom)
		}
		chunks, err := idx.Chunks(ref, win.Start, win.End)
		if err != nil {
			// No index entries for the interval means zero coverage.
			continue
		}
		it, err := bam.NewIterator(br, chunks)
		if err != nil {
			return nil, errors.Wrapf(err, "count: window %s", win.Name)
		}
		n := 0
		for it.Next() {
			rec := it.Record()
			if rec.Pos < win.End && rec.End() > win.Start {
				n++
			}
		}
		if err := it.Close(); err != nil {
			return nil, errors.Wrapf(err, "count: window %s", win.Name)
		}
		counts[i] = n
	}
	return counts, nil
}

// WriteCounts writes the per-sample count column consumed by cnv.Compile:
// a "Location TAB sample" header, then one window per line in panel order.
func WriteCounts(w io.Writer, sampleID string, windows []Window, counts []int) error {
	if len(windows) != len(counts) {
		return errors.Errorf("count: %d windows but %d counts", len(windows), len(counts))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Location\t%s\n", sampleID)
	for i, win := range windows {
		fmt.Fprintf(bw, "%s\t%d\n", win.Name, counts[i])
	}
	return bw.Flush()
}

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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PileupRecord is the per-locus nucleotide tally extracted from a pileup.
type PileupRecord struct {
	Chrom    string
	Position int
	A, C, G, T int
}

// Total is the read depth at the locus.
func (p PileupRecord) Total() int { return p.A + p.C + p.G + p.T }

// CountNucleotides tallies A/C/G/T in an mpileup base column. Everything
// non-alphanumeric (match/mismatch markers, indel syntax, read ends) is
// dropped and the rest uppercased, so reverse-strand calls count too.
func CountNucleotides(bases string) (a, c, g, t int) {
	for _, r := range bases {
		switch r {
		case 'A', 'a':
			a++
		case 'C', 'c':
			c++
		case 'G', 'g':
			g++
		case 'T', 't':
			t++
		}
	}
	return a, c, g, t
}

// ParseMpileup reads samtools mpileup text output and returns one record per
// line, in file order. Column 5 holds the base calls.
func ParseMpileup(r io.Reader) ([]PileupRecord, error) {
	var recs []PileupRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, errors.Errorf("mpileup line %d: %d fields, want at least 5", lineno, len(fields))
		}
		pos, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "mpileup line %d: position", lineno)
		}
		rec := PileupRecord{Chrom: fields[0], Position: pos}
		rec.A, rec.C, rec.G, rec.T = CountNucleotides(fields[4])
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// WriteTable writes the per-sample identity table: chrom, position and the
// four nucleotide counts, tab-separated.
func WriteTable(w io.Writer, recs []PileupRecord) error {
	for _, rec := range recs {
		if _, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			rec.Chrom, rec.Position, rec.A, rec.C, rec.G, rec.T); err != nil {
			return err
		}
	}
	return nil
}

// ReadTable reads a table produced by WriteTable.
func ReadTable(r io.Reader) ([]PileupRecord, error) {
	var recs []PileupRecord
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 6 {
			return nil, errors.Errorf("identity table line %d: %d fields, want 6", lineno, len(fields))
		}
		var rec PileupRecord
		rec.Chrom = fields[0]
		var err error
		for i, dst := range []*int{&rec.Position, &rec.A, &rec.C, &rec.G, &rec.T} {
			if *dst, err = strconv.Atoi(fields[i+1]); err != nil {
				return nil, errors.Wrapf(err, "identity table line %d", lineno)
			}
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

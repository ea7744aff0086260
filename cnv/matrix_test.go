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
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countFile(sample string, rows ...string) string {
	return "Location\t" + sample + "\n" + strings.Join(rows, "\n") + "\n"
}

func openStrings(files map[string]string) func(path string) (io.ReadCloser, error) {
	return func(path string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(files[path])), nil
	}
}

func TestReadSampleCounts(t *testing.T) {
	windows, counts, err := ReadSampleCounts(strings.NewReader(
		countFile("S1", "chr1:GENE1:E1\t12", "chr1:GENE1:E2\t0")))
	require.NoError(t, err)
	assert.Equal(t, []string{"chr1:GENE1:E1", "chr1:GENE1:E2"}, windows)
	assert.Equal(t, []float64{12, 0}, counts)
}

func TestReadSampleCountsRejectsMalformed(t *testing.T) {
	for _, input := range []string{
		"",
		"chr1:GENE1:E1\t12\n",
		countFile("S1", "chr1:GENE1:E1\t-3"),
		countFile("S1", "chr1:GENE1:E1\ttwelve"),
		countFile("S1", "chr1:GENE1:E1"),
	} {
		_, _, err := ReadSampleCounts(strings.NewReader(input))
		assert.Error(t, err, "input %q", input)
	}
}

func TestCompile(t *testing.T) {
	files := map[string]string{
		"s1.cnv": countFile("S1", "w1\t10", "w2\t20"),
		"s2.cnv": countFile("S2", "w1\t5", "w2\t40"),
	}
	m, err := Compile(map[string]string{"S2": "s2.cnv", "S1": "s1.cnv"}, openStrings(files))
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, m.Samples)
	assert.Equal(t, []string{"w1", "w2"}, m.Windows)
	assert.Equal(t, [][]float64{{10, 5}, {20, 40}}, m.Counts)
	assert.Equal(t, 1, m.Column("S2"))
	assert.Equal(t, -1, m.Column("S3"))
}

func TestCompileWindowMismatch(t *testing.T) {
	files := map[string]string{
		"s1.cnv": countFile("S1", "w1\t10", "w2\t20"),
		"s2.cnv": countFile("S2", "w1\t5", "w3\t40"),
	}
	_, err := Compile(map[string]string{"S1": "s1.cnv", "S2": "s2.cnv"}, openStrings(files))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S2")
}

func TestMatrixWriteTSV(t *testing.T) {
	m := &Matrix{
		Windows: []string{"w1", "w2"},
		Samples: []string{"S1", "S2"},
		Counts:  [][]float64{{10, 5}, {20, 0.5}},
	}
	var buf bytes.Buffer
	require.NoError(t, m.WriteTSV(&buf))
	assert.Equal(t, "Location\tS1\tS2\nw1\t10\t5\nw2\t20\t0.5\n", buf.String())
}

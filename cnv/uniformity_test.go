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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelPositions(t *testing.T) {
	n, err := PanelPositions("Cplus")
	require.NoError(t, err)
	assert.Equal(t, CplusPositions, n)
	n, err = PanelPositions("Cardiac")
	require.NoError(t, err)
	assert.Equal(t, CardiacPositions, n)
	_, err = PanelPositions("Exome")
	assert.Error(t, err)
}

func TestCoverageUniformity(t *testing.T) {
	// Mean coverage is 10; thresholds at 2, 5 and 10.
	table := "chrom\tpos\ttarget\tcoverage\n" +
		"chr1\t1\tw\t1\n" +
		"chr1\t2\tw\t4\n" +
		"chr1\t3\tw\t15\n" +
		"chr1\t4\tw\t20\n"
	row, err := CoverageUniformity(strings.NewReader(table), "S1", 8)
	require.NoError(t, err)
	assert.Equal(t, "S1", row.Sample)
	assert.InDelta(t, 10.0, row.Mean, 1e-12)
	// 3 positions at >=0.2x mean, 2 at >=0.5x, 2 at >=mean, over 8 panel
	// positions.
	assert.InDelta(t, 3.0/8, row.Frac02, 1e-12)
	assert.InDelta(t, 2.0/8, row.Frac05, 1e-12)
	assert.InDelta(t, 2.0/8, row.FracMean, 1e-12)
}

func TestCoverageUniformityErrors(t *testing.T) {
	_, err := CoverageUniformity(strings.NewReader(""), "S1", 10)
	assert.Error(t, err)
	_, err = CoverageUniformity(strings.NewReader("chrom\tpos\n"), "S1", 10)
	assert.Error(t, err)
	_, err = CoverageUniformity(strings.NewReader("coverage\nnope\n"), "S1", 10)
	assert.Error(t, err)
}

func TestWriteUniformity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUniformity(&buf, []UniformityRow{
		{Sample: "S1", Frac02: 0.5, Frac05: 0.25, FracMean: 0.125, Mean: 10},
	}))
	assert.Equal(t,
		"Sample ID\t0.2*mean\t0.5*mean\t1.0*mean\tMean\nS1\t0.5\t0.25\t0.125\t10\n",
		buf.String())
}

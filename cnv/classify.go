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

import "fmt"

// Call is the classification of one normalized ratio. The thresholds are
// calibrated panel constants, not derived quantities: 0.65 and 1.35 bound the
// confident deletion/amplification calls, with borderline bands up to 0.8 and
// down from 1.2.
type Call int

const (
	Normal Call = iota
	Deletion
	Amplification
	BorderlineLow
	BorderlineHigh
)

func (c Call) String() string {
	switch c {
	case Normal:
		return "normal"
	case Deletion:
		return "deletion"
	case Amplification:
		return "amplification"
	case BorderlineLow:
		return "borderline-low"
	case BorderlineHigh:
		return "borderline-high"
	}
	return fmt.Sprintf("call(%d)", int(c))
}

const (
	deletionMax      = 0.65
	borderlineLowMax = 0.8
	borderlineHighMin = 1.2
	amplificationMin = 1.35
)

// Classify maps a normalized ratio to a call.
func Classify(ratio float64) Call {
	switch {
	case ratio <= deletionMax:
		return Deletion
	case ratio >= amplificationMin:
		return Amplification
	case ratio < borderlineLowMax:
		return BorderlineLow
	case ratio > borderlineHighMin:
		return BorderlineHigh
	}
	return Normal
}

// CNVCall is one non-reference classification for a window/sample cell.
type CNVCall struct {
	Window string
	Sample string
	Ratio  float64
	Call   Call
}

// Calls returns every non-normal cell of the ratio matrix, in window-major
// order.
func (n *Normalized) Calls() []CNVCall {
	var calls []CNVCall
	for i, win := range n.Ratio.Windows {
		for j, ratio := range n.Ratio.Counts[i] {
			if call := Classify(ratio); call != Normal {
				calls = append(calls, CNVCall{
					Window: win,
					Sample: n.Ratio.Samples[j],
					Ratio:  ratio,
					Call:   call,
				})
			}
		}
	}
	return calls
}

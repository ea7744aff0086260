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

package eventlog

import (
	"fmt"
	"time"
)

// Scoped emits a start event and returns a function that emits the matching
// end event with the elapsed wall time. Callers defer the returned function
// around a step boundary.
func Scoped(s Sink, name, program, sampleID, runID string) func() {
	start := time.Now()
	s.Log(fmt.Sprintf("%s started", name), Info, program, sampleID, runID)
	return func() {
		elapsed := time.Since(start).Round(time.Millisecond)
		s.Log(fmt.Sprintf("%s finished in %s", name, elapsed), Info, program, sampleID, runID)
	}
}

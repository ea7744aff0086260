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

package runner

import "fmt"

// Tool is one wrapped external program. Exe is the executable path or launch
// prefix (for example "java -jar /opt/picard.jar"); per-operation invocation
// builders live with the pipeline, keeping tool syntax out of the execution
// core.
type Tool struct {
	Name string
	Exe  string
}

// Shell builds a shell Invocation for this tool. The format string is
// appended to the tool's launch prefix.
func (t Tool) Shell(desc, sampleID, runID, format string, args ...interface{}) Invocation {
	return Invocation{
		Shell:    t.Exe + " " + fmt.Sprintf(format, args...),
		Desc:     desc,
		Program:  t.Name,
		SampleID: sampleID,
		RunID:    runID,
	}
}

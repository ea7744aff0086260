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
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/grailbio/base/log"
)

// apiEntry is the wire format of the central log service.
type apiEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	SampleID  string `json:"sample_id"`
	RunID     string `json:"run_id"`
	Level     string `json:"level"`
	Program   string `json:"program"`
}

// API posts events to a remote log collector. Posting is best-effort: network
// failures are noted in the process debug log and otherwise dropped.
type API struct {
	URL    string
	Client *http.Client

	now func() time.Time
}

// NewAPI returns an API sink with a short request timeout so that a slow
// collector cannot stall a step.
func NewAPI(url string) *API {
	return &API{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
		now:    time.Now,
	}
}

func (a *API) Log(message string, level Level, program, sampleID, runID string) {
	entry := apiEntry{
		Timestamp: a.now().Format(time.RFC3339Nano),
		Message:   message,
		SampleID:  sampleID,
		RunID:     runID,
		Level:     string(level),
		Program:   program,
	}
	body, err := json.Marshal(entry)
	if err != nil {
		log.Debug.Printf("eventlog: marshal: %v", err)
		return
	}
	resp, err := a.Client.Post(a.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Debug.Printf("eventlog: post to %s: %v", a.URL, err)
		return
	}
	_ = resp.Body.Close()
}

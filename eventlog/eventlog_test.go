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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	message  string
	level    Level
	program  string
	sampleID string
	runID    string
}

type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recorder) Log(message string, level Level, program, sampleID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{message, level, program, sampleID, runID})
}

func TestMultiFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, b}
	m.Log("hello", Info, "align", "S1", "run42")
	for _, r := range []*recorder{a, b} {
		require.Len(t, r.entries, 1)
		assert.Equal(t, entry{"hello", Info, "align", "S1", "run42"}, r.entries[0])
	}
}

func TestScoped(t *testing.T) {
	r := &recorder{}
	done := Scoped(r, "dedup", "dedup", "S1", "run42")
	done()
	require.Len(t, r.entries, 2)
	assert.Equal(t, "dedup started", r.entries[0].message)
	assert.Contains(t, r.entries[1].message, "dedup finished in")
	assert.Equal(t, Info, r.entries[1].level)
}

func TestDB(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	db, err := OpenDB(filepath.Join(tmpDir, "logs.db"))
	require.NoError(t, err)
	db.Log("first", Info, "align", "S1", "run42")
	db.Log("second", Error, "dedup", "S1", "run42")
	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, db.Close())

	// Reopening must append, not recreate.
	db, err = OpenDB(filepath.Join(tmpDir, "logs.db"))
	require.NoError(t, err)
	db.Log("third", Info, "align", "S1", "run42")
	n, err = db.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, db.Close())
}

func TestOpenSampleDB(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	db, err := OpenSampleDB(tmpDir, "S1")
	require.NoError(t, err)
	defer db.Close() // nolint: errcheck
	_, err = os.Stat(filepath.Join(tmpDir, "BAM", "S1", "S1_pipeline_logs.db"))
	assert.NoError(t, err)
}

func TestAPI(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
	}))
	defer srv.Close()

	api := NewAPI(srv.URL)
	api.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	api.Log("sample started", Info, "pipeline", "S1", "run42")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	var got apiEntry
	require.NoError(t, json.Unmarshal([]byte(bodies[0]), &got))
	assert.Equal(t, "sample started", got.Message)
	assert.Equal(t, "S1", got.SampleID)
	assert.Equal(t, "run42", got.RunID)
	assert.Equal(t, "INFO", got.Level)
	assert.Equal(t, "pipeline", got.Program)
	assert.True(t, strings.HasPrefix(got.Timestamp, "2024-05-01T12:00:00"))
}

func TestAPIUnreachable(t *testing.T) {
	// A dead collector must not panic or block.
	api := NewAPI("http://127.0.0.1:1/logs")
	api.Client.Timeout = 100 * time.Millisecond
	api.Log("dropped", Info, "pipeline", "S1", "run42")
}

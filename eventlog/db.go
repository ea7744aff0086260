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
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/grailbio/base/log"
	_ "modernc.org/sqlite"
)

const logSchema = `
CREATE TABLE IF NOT EXISTS logs (
	timestamp TEXT NOT NULL,
	message   TEXT NOT NULL,
	level     TEXT NOT NULL,
	program   TEXT NOT NULL,
	sample_id TEXT NOT NULL,
	run_id    TEXT NOT NULL
)`

// DB appends events to a SQLite database, one database per sample. The
// database lives next to the sample's artifacts so that a run directory is
// self-contained.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSampleDB opens (creating if needed) the per-sample log database at
// <datadir>/BAM/<sampleID>/<sampleID>_pipeline_logs.db.
func OpenSampleDB(datadir, sampleID string) (*DB, error) {
	dir := filepath.Join(datadir, "BAM", sampleID)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}
	return OpenDB(filepath.Join(dir, sampleID+"_pipeline_logs.db"))
}

// OpenDB opens a log database at an explicit path.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(logSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

func (d *DB) Log(message string, level Level, program, sampleID, runID string) {
	_, err := d.db.Exec(
		"INSERT INTO logs (timestamp, message, level, program, sample_id, run_id) VALUES (?, ?, ?, ?, ?, ?)",
		d.now().Format(time.RFC3339Nano), message, string(level), program, sampleID, runID)
	if err != nil {
		log.Debug.Printf("eventlog: sqlite insert: %v", err)
	}
}

// Count reports the number of stored events, for tests and diagnostics.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM logs").Scan(&n)
	return n, err
}

func (d *DB) Close() error { return d.db.Close() }

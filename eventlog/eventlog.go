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

// Package eventlog carries structured pipeline events to one or more sinks.
// Sinks are fire-and-forget: a sink failure never affects pipeline control
// flow, so Log has no error return.
package eventlog

import (
	"github.com/grailbio/base/log"
)

// Level is the severity attached to an event.
type Level string

const (
	Debug   Level = "DEBUG"
	Info    Level = "INFO"
	Warning Level = "WARNING"
	Error   Level = "ERROR"
)

// Sink receives one structured event. program names the pipeline component
// emitting the event; sampleID is "NA" for run-level events.
type Sink interface {
	Log(message string, level Level, program, sampleID, runID string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Log(string, Level, string, string, string) {}

// Multi fans each event out to every sink.
type Multi []Sink

func (m Multi) Log(message string, level Level, program, sampleID, runID string) {
	for _, s := range m {
		s.Log(message, level, program, sampleID, runID)
	}
}

// Console mirrors events to the process log.
type Console struct{}

func (Console) Log(message string, level Level, program, sampleID, runID string) {
	switch level {
	case Debug:
		log.Debug.Printf("[%s] %s %s: %s", runID, sampleID, program, message)
	case Error:
		log.Error.Printf("[%s] %s %s: %s", runID, sampleID, program, message)
	default:
		log.Printf("[%s] %s %s: %s", runID, sampleID, program, message)
	}
}

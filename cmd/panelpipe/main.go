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

// panelpipe runs the panel secondary-analysis pipeline over a sequencing run
// directory: per-sample alignment, variant calling and QC, then run-level
// identity and copy-number reports.
//
// Exit status: 0 when every sample succeeded, 1 when some samples failed but
// the run completed, 2 when the run could not complete.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/medgenome/panelpipe/eventlog"
	"github.com/medgenome/panelpipe/pipeline"
)

type sampleList []string

func (s *sampleList) String() string { return strings.Join(*s, ",") }
func (s *sampleList) Set(v string) error {
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			*s = append(*s, id)
		}
	}
	return nil
}

func main() {
	var (
		configFlag  = flag.String("config", "", "YAML run configuration (required)")
		datadirFlag = flag.String("datadir", "", "run directory holding the input FASTQ files (required)")
		panelFlag   = flag.String("panel", "", "override the configured panel name (Cplus or Cardiac)")
		apiFlag     = flag.String("log-api", "", "optional HTTP endpoint receiving JSON log events")
		noDBFlag    = flag.Bool("no-sample-db", false, "disable per-sample SQLite log databases")
		samples     sampleList
	)
	flag.Var(&samples, "sample", "restrict the run to this sample id (repeatable, or comma separated)")
	shutdown := grail.Init()
	ctx := vcontext.Background()

	if *configFlag == "" || *datadirFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: panelpipe -config config.yaml -datadir /path/to/run [-sample id]...")
		flag.PrintDefaults()
		shutdown()
		os.Exit(2)
	}

	cfg, err := pipeline.LoadConfig(*configFlag)
	if err != nil {
		log.Error.Printf("%v", err)
		shutdown()
		os.Exit(2)
	}
	if *panelFlag != "" {
		cfg.Panel = *panelFlag
	}

	events := eventlog.Multi{eventlog.Console{}}
	if *apiFlag != "" {
		events = append(events, eventlog.NewAPI(*apiFlag))
	}
	orch := &pipeline.Orchestrator{
		Cfg:         cfg,
		Lay:         pipeline.Layout{Datadir: *datadirFlag},
		Events:      events,
		Samples:     samples,
		PerSampleDB: !*noDBFlag,
	}
	res, err := orch.Run(ctx)
	if err != nil {
		log.Error.Printf("run failed: %v", err)
		shutdown()
		os.Exit(2)
	}
	for _, s := range res.FailedSamples() {
		log.Error.Printf("sample %s failed", s)
	}
	code := res.ExitCode()
	shutdown()
	os.Exit(code)
}

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

// Package pipeline drives the per-sample analysis DAG and the run-level
// aggregation across samples. All inter-step state lives in artifacts on the
// run's filesystem; the packages step and runner supply the execution
// machinery, and this package supplies the stage definitions and tool
// command syntax.
package pipeline

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/medgenome/panelpipe/cnv"
)

// ToolPaths locates the wrapped external programs. Each entry is an
// executable path or a launch prefix such as "java -jar /opt/picard.jar".
type ToolPaths struct {
	BWA       string `yaml:"BWA"`
	Samtools  string `yaml:"SAMTOOLS"`
	Picard    string `yaml:"PICARD"`
	GATK      string `yaml:"GATK"`
	GATK3     string `yaml:"GATK3"`
	Freebayes string `yaml:"FREEBAYES"`
	Octopus   string `yaml:"OCTOPUS"`
	SnpEff    string `yaml:"SNPEFF"`
}

// Config is the structured run configuration document.
type Config struct {
	// Reference is the reference genome FASTA.
	Reference string `yaml:"Reference"`
	// KnownSites is the known-variants VCF consumed by base recalibration.
	KnownSites string `yaml:"VCF"`
	// BED maps sample id to its target-region BED.
	BED map[string]string `yaml:"BED"`
	// Bait is the capture bait BED shared by the run.
	Bait string `yaml:"BAIT"`
	// Gender maps sample id to declared sex ("M"/"Male"/"F"/"Female").
	Gender map[string]string `yaml:"Gender"`
	// Panel names the panel design ("Cplus" or "Cardiac").
	Panel string `yaml:"Panel"`
	// WindowBED is the panel's CNV counting window BED.
	WindowBED string `yaml:"WindowBED"`
	// IdentityBED lists the 16 identity loci for samtools mpileup.
	IdentityBED string `yaml:"Identity"`
	// SnpEffGenome is the annotation database name.
	SnpEffGenome string `yaml:"SnpEffGenome"`
	// AlignThreads bounds bwa threads; 0 picks a default.
	AlignThreads int `yaml:"AlignThreads"`

	Tools ToolPaths `yaml:"Tools"`
}

// LoadConfig reads and validates a YAML run configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the fields every run needs. Per-sample entries (BED,
// Gender) are checked when the sample is processed.
func (c *Config) Validate() error {
	switch {
	case c.Reference == "":
		return errors.New("Reference is required")
	case c.KnownSites == "":
		return errors.New("VCF (known sites) is required")
	case c.Panel == "":
		return errors.New("Panel is required")
	case c.WindowBED == "":
		return errors.New("WindowBED is required")
	case c.IdentityBED == "":
		return errors.New("Identity is required")
	}
	for _, tool := range []struct{ name, path string }{
		{"BWA", c.Tools.BWA},
		{"SAMTOOLS", c.Tools.Samtools},
		{"PICARD", c.Tools.Picard},
		{"GATK", c.Tools.GATK},
		{"GATK3", c.Tools.GATK3},
		{"FREEBAYES", c.Tools.Freebayes},
		{"OCTOPUS", c.Tools.Octopus},
		{"SNPEFF", c.Tools.SnpEff},
	} {
		if tool.path == "" {
			return errors.Errorf("Tools.%s is required", tool.name)
		}
	}
	if c.SnpEffGenome == "" {
		c.SnpEffGenome = "hg19"
	}
	if c.AlignThreads <= 0 {
		c.AlignThreads = 8
	}
	return nil
}

// Sexes converts the declared gender map for the CNV engine.
func (c *Config) Sexes() map[string]cnv.Sex {
	sexes := make(map[string]cnv.Sex, len(c.Gender))
	for sample, g := range c.Gender {
		sexes[sample] = cnv.ParseSex(g)
	}
	return sexes
}

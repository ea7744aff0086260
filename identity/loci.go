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

// Package identity derives a deterministic 16-digit fingerprint per sample
// from nucleotide pileups at 16 fixed loci, and flags samples whose
// fingerprints collide. A collision is a sample mix-up signal, not a benign
// artifact.
package identity

// Locus is one fixed identity position. Label is the gene/exon tag used in
// codes ("ALK_E29"); HGVS is the variant notation carried into reports.
type Locus struct {
	Label    string
	Position int
	HGVS     string
}

// Class is the genotype class of one locus: "1" homozygous reference, "2"
// heterozygous, "3" homozygous alternate, "5" no coverage, "U" ambiguous.
type Class string

// Config is the immutable table set driving fingerprinting. The tables are
// panel design data; they are injected rather than read from module state so
// tests can substitute small tables.
type Config struct {
	// Loci in genomic order; this is also the row order of identity
	// tables.
	Loci []Locus
	// Codes is the closed full-code -> class lookup. A full code absent
	// from this table is an error, never an inferred default.
	Codes map[string]Class
	// Permutation gives the barcode digit order as indexes into Loci. It
	// is a historical panel ordering, deliberately not genomic order.
	Permutation []int
	// Threshold is the minimum nucleotide fraction considered present.
	Threshold float64
}

// Default is the production table set for the 16-locus identity panel.
var Default = Config{
	Loci: []Locus{
		{"ALK_E29", 29416481, "c.4472A>G"},
		{"BARD1_E4", 215645464, "c.1134G>C"},
		{"XPC_E16", 14187449, "c.2815C>A"},
		{"APC_E16", 112164561, "c.1635G>A"},
		{"EGFR_E4", 55214348, "c.474C>T"},
		{"MET_E20", 116435768, "c.3912C>T"},
		{"MET_E21", 116436022, "c.4071G>A"},
		{"WRN_E26", 30999280, "c.3222G>T"},
		{"NBN_E10", 90967711, "c.1197T>C"},
		{"RECQL4_E3", 145742879, "c.132A>G"},
		{"PTCH1_E23", 98209594, "c.3944C>T"},
		{"POLE_E45", 133208979, "c.6252A>G"},
		{"BRCA2_E17", 32936646, "c.7806-14T>C"},
		{"FANCI_E37", 89858602, "c.3906T>C"},
		{"FANCA_E16", 89849480, "c.1501G>A"},
		{"BRIP1_E19", 59763347, "c.2755T>C"},
	},
	Codes: map[string]Class{
		"ALK_E29000T": "1",
		"ALK_E290C0T": "2",
		"ALK_E290C00": "3",
		"ALK_E29":     "5",

		"BARD1_E40C00": "1",
		"BARD1_E40CG0": "2",
		"BARD1_E400G0": "3",
		"BARD1_E4":     "5",

		"XPC_E1600G0": "1",
		"XPC_E1600GT": "2",
		"XPC_E16000T": "3",
		"XPC_E16":     "5",

		"APC_E1600G0": "1",
		"APC_E16A0G0": "2",
		"APC_E16A000": "3",
		"APC_E16":     "5",

		"EGFR_E40C00": "1",
		"EGFR_E40C0T": "2",
		"EGFR_E4000T": "3",
		"EGFR_E4":     "5",

		"MET_E200C00": "1",
		"MET_E200C0T": "2",
		"MET_E20000T": "3",
		"MET_E20":     "5",

		"MET_E2100G0": "1",
		"MET_E21A0G0": "2",
		"MET_E21A000": "3",
		"MET_E21":     "5",
		"MET_E210CG0": "U",

		"WRN_E2600G0": "1",
		"WRN_E2600GT": "2",
		"WRN_E26000T": "3",
		"WRN_E26":     "5",

		"NBN_E10A000": "1",
		"NBN_E10A0G0": "2",
		"NBN_E1000G0": "3",
		"NBN_E10":     "5",

		"RECQL4_E3000T": "1",
		"RECQL4_E30C0T": "2",
		"RECQL4_E30C00": "3",
		"RECQL4_E3":     "5",

		"PTCH1_E2300G0": "1",
		"PTCH1_E23A0G0": "2",
		"PTCH1_E23A000": "3",
		"PTCH1_E23":     "5",

		"POLE_E45000T": "1",
		"POLE_E450C0T": "2",
		"POLE_E450C00": "3",
		"POLE_E45":     "5",

		"BRCA2_E17000T": "1",
		"BRCA2_E170C0T": "2",
		"BRCA2_E170C00": "3",
		"BRCA2_E17":     "5",

		"FANCI_E37000T": "1",
		"FANCI_E370C0T": "2",
		"FANCI_E370C00": "3",
		"FANCI_E37":     "5",

		"FANCA_E160C00": "1",
		"FANCA_E160C0T": "2",
		"FANCA_E16000T": "3",
		"FANCA_E16":     "5",

		"BRIP1_E19A000": "1",
		"BRIP1_E19A0G0": "2",
		"BRIP1_E1900G0": "3",
		"BRIP1_E19":     "5",
	},
	Permutation: []int{0, 3, 1, 12, 15, 4, 14, 13, 5, 6, 8, 11, 10, 9, 7, 2},
	Threshold:   0.1,
}

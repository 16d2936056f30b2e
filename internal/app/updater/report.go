package updater

import "time"

// Result is the outcome of one checklist operation.
type Result struct {
	// Document is the full updated checklist text.
	Document string `json:"-" yaml:"-"`

	Report Report `json:"report" yaml:"report"`
}

// Report summarises what an operation changed and what it ignored.
type Report struct {
	RunID string `json:"run_id" yaml:"run_id"`
	Mode  string `json:"mode" yaml:"mode"`

	// Records is the number of VULN records in the source checklist.
	Records int `json:"records" yaml:"records"`

	// Updated is the number of records whose COMMENTS field was rewritten.
	Updated int `json:"updated" yaml:"updated"`

	// Merge only.
	CSVRows      int      `json:"csv_rows,omitempty" yaml:"csv_rows,omitempty"`
	Comments     int      `json:"comments,omitempty" yaml:"comments,omitempty"`
	SkippedLines []int    `json:"skipped_lines,omitempty" yaml:"skipped_lines,omitempty"`
	Duplicates   []string `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Unmatched    []string `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Changed reports whether the operation rewrote any record.
func (r Report) Changed() bool {
	return r.Updated > 0
}

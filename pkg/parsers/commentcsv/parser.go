package commentcsv

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/openctemio/cklmerge/pkg/checklist"
)

// Column positions in a comment export row.
const (
	ColumnID      = 0
	ColumnComment = 1
)

// Map maps a finding identifier (Vuln_Num) to the comment to write.
type Map map[string]string

// Result is the outcome of ingesting one CSV document.
type Result struct {
	// Comments holds the last comment seen for each identifier.
	Comments Map `json:"comments"`

	// Rows is the number of data rows read, header excluded.
	Rows int `json:"rows"`

	// SkippedLines lists 1-based line numbers of rows with fewer than two
	// columns or an empty identifier.
	SkippedLines []int `json:"skipped_lines,omitempty"`

	// Duplicates lists identifiers seen on more than one row, in first-seen order.
	Duplicates []string `json:"duplicates,omitempty"`
}

// Parse ingests a comment export and returns the identifier to comment
// mapping. It never fails; malformed rows are dropped.
func Parse(text string) Map {
	return ParseDetailed(text).Comments
}

// ParseDetailed ingests a comment export and reports what was dropped.
//
// Line 1 is a header and is discarded. Columns are split on a literal comma
// with no quoting, so a comment containing a comma is cut at the comma.
func ParseDetailed(text string) *Result {
	res := &Result{Comments: make(Map)}
	dup := make(map[string]bool)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i == 0 || line == "" {
			continue
		}
		res.Rows++

		cols := strings.Split(line, ",")
		if len(cols) < 2 {
			res.SkippedLines = append(res.SkippedLines, i+1)
			continue
		}

		id := strings.TrimSpace(cols[ColumnID])
		if id == "" {
			res.SkippedLines = append(res.SkippedLines, i+1)
			continue
		}

		if _, exists := res.Comments[id]; exists && !dup[id] {
			dup[id] = true
			res.Duplicates = append(res.Duplicates, id)
		}
		res.Comments[id] = strings.TrimSpace(cols[ColumnComment])
	}

	return res
}

// ParseReader reads all of r and ingests it.
func ParseReader(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, checklist.NewReadError("read comment export", err)
	}
	return ParseDetailed(string(data)), nil
}

// ParseFile ingests the comment export at path.
func ParseFile(path string) (*Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, checklist.NewReadError(fmt.Sprintf("open %s", path), err)
	}
	defer file.Close()

	return ParseReader(file)
}

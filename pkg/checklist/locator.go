package checklist

import (
	"fmt"
	"regexp"
)

// StatusOpen is the STATUS value of a finding that has not been remediated.
const StatusOpen = "Open"

// Statuses written by STIG Viewer.
var Statuses = []string{StatusOpen, "NotAFinding", "Not_Applicable", "Not_Reviewed"}

// Capture groups shared by every locator pattern.
const (
	groupPrefix   = 1
	groupInterior = 2
	groupSuffix   = 3
)

const (
	commentsOpen  = `<COMMENTS>`
	commentsClose = `</COMMENTS>`

	vulnNumTemplate  = `(?s)(<VULN>.*?<VULN_ATTRIBUTE>Vuln_Num</VULN_ATTRIBUTE>\s*<ATTRIBUTE_DATA>%s</ATTRIBUTE_DATA>.*?` + commentsOpen + `)(.*?)(` + commentsClose + `)`
	statusTemplate   = `(?s)(<VULN>.*?<STATUS>%s</STATUS>.*?` + commentsOpen + `)(.*?)(` + commentsClose + `)`
	commentsTemplate = `(?s)(<VULN>.*?` + commentsOpen + `)(.*?)(` + commentsClose + `)`
)

// Locator selects the COMMENTS field of a VULN record.
//
// Every locator pattern exposes three groups: the record prefix up to and
// including <COMMENTS>, the current interior, and </COMMENTS>. Wildcards are
// lazy and match newlines.
type Locator struct {
	name string
	re   *regexp.Regexp
}

// OpenLocator matches records whose STATUS is Open.
var OpenLocator = mustLocator(NewStatusLocator(StatusOpen))

// CommentsLocator matches the COMMENTS field of any record.
var CommentsLocator = mustLocator(compileLocator("comments", commentsTemplate))

// NewVulnNumLocator returns a locator scoped to the record whose Vuln_Num
// equals id. The identifier is matched literally.
func NewVulnNumLocator(id string) (*Locator, error) {
	return compileLocator("vuln_num="+id, fmt.Sprintf(vulnNumTemplate, regexp.QuoteMeta(id)))
}

// NewStatusLocator returns a locator scoped to records whose STATUS equals
// status. The status is matched literally.
func NewStatusLocator(status string) (*Locator, error) {
	return compileLocator("status="+status, fmt.Sprintf(statusTemplate, regexp.QuoteMeta(status)))
}

func compileLocator(name, pattern string) (*Locator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, NewPatternError(fmt.Sprintf("compile locator %q", name), err)
	}
	return &Locator{name: name, re: re}, nil
}

func mustLocator(l *Locator, err error) *Locator {
	if err != nil {
		panic(err)
	}
	return l
}

// String returns a short description of what the locator selects.
func (l *Locator) String() string {
	return l.name
}

// Pattern returns the source of the compiled pattern.
func (l *Locator) Pattern() string {
	return l.re.String()
}

// match returns the submatch indexes of l within record, or nil.
func (l *Locator) match(record string) []int {
	return l.re.FindStringSubmatchIndex(record)
}

// Interior returns the current COMMENTS interior of record if l matches it.
func (l *Locator) Interior(record string) (string, bool) {
	m := l.match(record)
	if m == nil {
		return "", false
	}
	return record[m[2*groupInterior]:m[2*groupInterior+1]], true
}

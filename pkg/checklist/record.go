package checklist

import (
	"regexp"
	"strings"
)

// recordPattern bounds one VULN record. Lazy, so a match ends at the first
// </VULN> after its opening tag.
var recordPattern = regexp.MustCompile(`(?s)<VULN>.*?</VULN>`)

var (
	statusPattern   = regexp.MustCompile(`(?s)<STATUS>(.*?)</STATUS>`)
	commentsPattern = regexp.MustCompile(`(?s)<COMMENTS>(.*?)</COMMENTS>`)
)

// Attribute names read from STIG_DATA entries.
const (
	AttrVulnNum   = "Vuln_Num"
	AttrSeverity  = "Severity"
	AttrRuleTitle = "Rule_Title"
	AttrRuleID    = "Rule_ID"
)

var attributePatterns = map[string]*regexp.Regexp{
	AttrVulnNum:   attributePattern(AttrVulnNum),
	AttrSeverity:  attributePattern(AttrSeverity),
	AttrRuleTitle: attributePattern(AttrRuleTitle),
	AttrRuleID:    attributePattern(AttrRuleID),
}

func attributePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<VULN_ATTRIBUTE>` + regexp.QuoteMeta(name) +
		`</VULN_ATTRIBUTE>\s*<ATTRIBUTE_DATA>(.*?)</ATTRIBUTE_DATA>`)
}

// Record is a read-only view of one VULN record span.
type Record struct {
	VulnNum   string `json:"vuln_num" yaml:"vuln_num"`
	RuleID    string `json:"rule_id,omitempty" yaml:"rule_id,omitempty"`
	Severity  string `json:"severity,omitempty" yaml:"severity,omitempty"`
	RuleTitle string `json:"rule_title,omitempty" yaml:"rule_title,omitempty"`
	Status    string `json:"status" yaml:"status"`
	Comments  string `json:"comments" yaml:"comments"`

	// HasComments is false when the record carries no <COMMENTS>...</COMMENTS> pair.
	HasComments bool `json:"has_comments" yaml:"has_comments"`

	// Start and End are byte offsets of the record span in the document.
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// recordSpans returns the [start, end) offsets of every VULN record in doc.
func recordSpans(doc string) [][]int {
	return recordPattern.FindAllStringIndex(doc, -1)
}

// CountRecords returns the number of VULN records in doc.
func CountRecords(doc string) int {
	return len(recordSpans(doc))
}

// Records returns a view of every VULN record in doc, in document order.
func Records(doc string) []Record {
	spans := recordSpans(doc)
	records := make([]Record, 0, len(spans))
	for _, span := range spans {
		raw := doc[span[0]:span[1]]
		r := Record{
			VulnNum:   Attribute(raw, AttrVulnNum),
			RuleID:    Attribute(raw, AttrRuleID),
			Severity:  Attribute(raw, AttrSeverity),
			RuleTitle: Attribute(raw, AttrRuleTitle),
			Status:    firstGroup(statusPattern, raw),
			Start:     span[0],
			End:       span[1],
		}
		if m := commentsPattern.FindStringSubmatch(raw); m != nil {
			r.Comments = m[1]
			r.HasComments = true
		}
		records = append(records, r)
	}
	return records
}

// Attribute returns the ATTRIBUTE_DATA of the named STIG_DATA entry in
// record, trimmed of surrounding whitespace.
func Attribute(record, name string) string {
	re, ok := attributePatterns[name]
	if !ok {
		re = attributePattern(name)
	}
	return strings.TrimSpace(firstGroup(re, record))
}

// VulnNum returns the Vuln_Num of record.
func VulnNum(record string) string {
	id, _ := vulnNum(record)
	return id
}

// vulnNum also reports whether record carries a Vuln_Num entry at all, so an
// empty identifier can be told apart from a missing one.
func vulnNum(record string) (string, bool) {
	m := attributePatterns[AttrVulnNum].FindStringSubmatch(record)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

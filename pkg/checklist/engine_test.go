package checklist

import (
	"strings"
	"testing"
)

func vuln(id, status, comments string) string {
	return `<VULN>
<STIG_DATA>
<VULN_ATTRIBUTE>Vuln_Num</VULN_ATTRIBUTE>
<ATTRIBUTE_DATA>` + id + `</ATTRIBUTE_DATA>
</STIG_DATA>
<STIG_DATA>
<VULN_ATTRIBUTE>Severity</VULN_ATTRIBUTE>
<ATTRIBUTE_DATA>medium</ATTRIBUTE_DATA>
</STIG_DATA>
<STATUS>` + status + `</STATUS>
<FINDING_DETAILS></FINDING_DETAILS>
<COMMENTS>` + comments + `</COMMENTS>
<SEVERITY_OVERRIDE></SEVERITY_OVERRIDE>
</VULN>`
}

func checklistDoc(records ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<CHECKLIST>
<STIGS>
<iSTIG>
` + strings.Join(records, "\n") + `
</iSTIG>
</STIGS>
</CHECKLIST>
`
}

func commentsOf(t *testing.T, doc, id string) string {
	t.Helper()
	for _, r := range Records(doc) {
		if r.VulnNum == id {
			return r.Comments
		}
	}
	t.Fatalf("record %s not found", id)
	return ""
}

func TestEscapeReplacement(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"$1", "$$1"},
		{"cost: $5 & done\\now", "cost: $$5 & done\\now"},
		{"${2}", "$${2}"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := EscapeReplacement(tt.in); got != tt.want {
			t.Errorf("EscapeReplacement(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeXML(t *testing.T) {
	if got := EscapeXML("a < b & c > d"); got != "a &lt; b &amp; c &gt; d" {
		t.Errorf("EscapeXML() = %q", got)
	}
}

func TestApply_OpenLocator(t *testing.T) {
	doc := checklistDoc(
		vuln("V-1", "Open", ""),
		vuln("V-2", "NotAFinding", "keep me"),
		vuln("V-3", "Open", "old text"),
	)

	out, n := Apply(doc, OpenLocator, "fixed comment")

	if n != 2 {
		t.Fatalf("expected 2 records rewritten, got %d", n)
	}
	if got := commentsOf(t, out, "V-1"); got != "fixed comment" {
		t.Errorf("V-1 comments = %q", got)
	}
	if got := commentsOf(t, out, "V-2"); got != "keep me" {
		t.Errorf("V-2 comments = %q", got)
	}
	if got := commentsOf(t, out, "V-3"); got != "fixed comment" {
		t.Errorf("V-3 comments = %q", got)
	}

	want := checklistDoc(
		vuln("V-1", "Open", "fixed comment"),
		vuln("V-2", "NotAFinding", "keep me"),
		vuln("V-3", "Open", "fixed comment"),
	)
	if out != want {
		t.Errorf("unexpected document:\n%s", out)
	}
}

func TestApply_NoMatchReturnsInput(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "NotAFinding", "x"))

	out, n := Apply(doc, OpenLocator, "ignored")

	if n != 0 {
		t.Errorf("expected no rewrites, got %d", n)
	}
	if out != doc {
		t.Error("document changed without a match")
	}
}

func TestApply_SpecialCharactersVerbatim(t *testing.T) {
	texts := []string{
		"cost: $5 & done\\now",
		"$1 $2 $3 ${1}",
		"line one\nline two\r\nline three",
		`\1 \\ \$`,
		"$",
	}
	for _, text := range texts {
		loc, err := NewVulnNumLocator("V-7")
		if err != nil {
			t.Fatalf("NewVulnNumLocator() error = %v", err)
		}
		doc := checklistDoc(vuln("V-7", "Open", "before"))

		out, n := Apply(doc, loc, text)

		if n != 1 {
			t.Fatalf("expected 1 rewrite, got %d", n)
		}
		if got := commentsOf(t, out, "V-7"); got != text {
			t.Errorf("comments = %q, want %q", got, text)
		}
	}
}

func TestApply_MultilineInterior(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "Open", "first\nsecond\n\nthird"))

	out, n := Apply(doc, OpenLocator, "new")

	if n != 1 {
		t.Fatalf("expected 1 rewrite, got %d", n)
	}
	if got := commentsOf(t, out, "V-1"); got != "new" {
		t.Errorf("comments = %q", got)
	}
}

func TestApply_DoesNotBleedAcrossRecords(t *testing.T) {
	// First record is Open but has no COMMENTS element; the second is not Open.
	noComments := `<VULN>
<STATUS>Open</STATUS>
</VULN>`
	doc := checklistDoc(noComments, vuln("V-2", "NotAFinding", "untouched"))

	out, n := Apply(doc, OpenLocator, "leaked")

	if n != 0 {
		t.Fatalf("expected no rewrites, got %d", n)
	}
	if out != doc {
		t.Errorf("document changed:\n%s", out)
	}
}

func TestApply_SelfClosingCommentsUntouched(t *testing.T) {
	rec := strings.Replace(vuln("V-1", "Open", ""), "<COMMENTS></COMMENTS>", "<COMMENTS/>", 1)
	doc := checklistDoc(rec)

	out, n := Apply(doc, OpenLocator, "x")

	if n != 0 || out != doc {
		t.Errorf("expected self-closing COMMENTS to be left alone, n=%d", n)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "Open", "a"))
	orig := strings.Clone(doc)

	_, _ = Apply(doc, OpenLocator, "b")

	if doc != orig {
		t.Error("input document was modified")
	}
}

func TestMergeComments(t *testing.T) {
	doc := checklistDoc(
		vuln("V-1", "Open", ""),
		vuln("V-2", "Open", ""),
		vuln("V-3", "NotAFinding", "stays"),
	)
	comments := map[string]string{
		"V-1":  "Looks fine",
		"V-2":  "Needs review",
		"V-99": "absent",
	}

	out, stats := MergeComments(doc, comments)

	if stats.Records != 3 {
		t.Errorf("Records = %d, want 3", stats.Records)
	}
	if stats.Updated != 2 {
		t.Errorf("Updated = %d, want 2", stats.Updated)
	}
	if len(stats.Unmatched) != 1 || stats.Unmatched[0] != "V-99" {
		t.Errorf("Unmatched = %v, want [V-99]", stats.Unmatched)
	}
	if got := commentsOf(t, out, "V-1"); got != "Looks fine" {
		t.Errorf("V-1 comments = %q", got)
	}
	if got := commentsOf(t, out, "V-2"); got != "Needs review" {
		t.Errorf("V-2 comments = %q", got)
	}
	if got := commentsOf(t, out, "V-3"); got != "stays" {
		t.Errorf("V-3 comments = %q", got)
	}
}

func TestMergeComments_AbsentIdentifierLeavesDocumentIdentical(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "Open", "x"), vuln("V-2", "Open", "y"))

	out, stats := MergeComments(doc, map[string]string{"V-99": "nope"})

	if out != doc {
		t.Error("document changed for an absent identifier")
	}
	if stats.Updated != 0 {
		t.Errorf("Updated = %d, want 0", stats.Updated)
	}
}

func TestMergeComments_IdentifierIsLiteral(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "Open", "x"), vuln("VV1", "Open", "y"))

	out, _ := MergeComments(doc, map[string]string{"V.1": "regex"})
	if out != doc {
		t.Error("identifier with regex metacharacters matched another record")
	}

	seqOut, _, err := MergeCommentsSequential(doc, map[string]string{"V.1": "regex"})
	if err != nil {
		t.Fatalf("MergeCommentsSequential() error = %v", err)
	}
	if seqOut != doc {
		t.Error("sequential merge matched a record through a regex metacharacter")
	}
}

func TestMergeStrategiesAgree(t *testing.T) {
	noVulnNum := "<VULN>\n<STIG_DATA>\n<VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE>\n" +
		"<ATTRIBUTE_DATA>SV-1r1_rule</ATTRIBUTE_DATA>\n</STIG_DATA>\n" +
		"<STATUS>Open</STATUS>\n<COMMENTS>untouched</COMMENTS>\n</VULN>"
	doc := checklistDoc(
		vuln("V-10", "Open", ""),
		vuln("V-11", "NotAFinding", "old"),
		vuln("V-12", "Not_Reviewed", "multi\nline"),
		vuln("V-13", "Open", "keep"),
		noVulnNum,
	)
	comments := map[string]string{
		"V-10": "a $1 b",
		"V-11": `back\slash`,
		"V-12": "",
		"V-77": "missing",
		"":     "blank id",
	}

	single, singleStats := MergeComments(doc, comments)
	seq, seqStats, err := MergeCommentsSequential(doc, comments)
	if err != nil {
		t.Fatalf("MergeCommentsSequential() error = %v", err)
	}

	if single != seq {
		t.Errorf("strategies disagree:\nsingle:\n%s\nsequential:\n%s", single, seq)
	}
	if singleStats.Updated != seqStats.Updated {
		t.Errorf("Updated: single=%d sequential=%d", singleStats.Updated, seqStats.Updated)
	}
	if strings.Join(singleStats.Unmatched, ",") != strings.Join(seqStats.Unmatched, ",") {
		t.Errorf("Unmatched: single=%v sequential=%v", singleStats.Unmatched, seqStats.Unmatched)
	}
	if !strings.Contains(single, noVulnNum) {
		t.Errorf("record without Vuln_Num was rewritten:\n%s", single)
	}
	if singleStats.Updated != 3 {
		t.Errorf("Updated = %d, want 3", singleStats.Updated)
	}
}

func TestMergeComments_EmptyIdentifierMatchesEmptyVulnNum(t *testing.T) {
	doc := checklistDoc(vuln("", "Open", "old"), vuln("V-1", "Open", "keep"))
	comments := map[string]string{"": "blank"}

	single, stats := MergeComments(doc, comments)
	seq, _, err := MergeCommentsSequential(doc, comments)
	if err != nil {
		t.Fatalf("MergeCommentsSequential() error = %v", err)
	}

	if single != seq {
		t.Errorf("strategies disagree:\nsingle:\n%s\nsequential:\n%s", single, seq)
	}
	if stats.Updated != 1 {
		t.Errorf("Updated = %d, want 1", stats.Updated)
	}
	if got := commentsOf(t, single, "V-1"); got != "keep" {
		t.Errorf("V-1 comments = %q, want keep", got)
	}
}

func TestMergeComments_FixedPoint(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "Open", ""), vuln("V-2", "Open", "old"))
	comments := map[string]string{"V-1": "one", "V-2": "two"}

	first, _ := MergeComments(doc, comments)
	again, _ := MergeComments(doc, comments)
	second, _ := MergeComments(first, comments)

	if first != again {
		t.Error("same inputs produced different outputs")
	}
	if first != second {
		t.Error("re-merging the output changed it")
	}
}

func TestMergeComments_EmptyMap(t *testing.T) {
	doc := checklistDoc(vuln("V-1", "Open", "x"))

	out, stats := MergeComments(doc, nil)

	if out != doc || stats.Updated != 0 || stats.Records != 1 {
		t.Errorf("unexpected result for empty map: %+v", stats)
	}
}

/*
Package checklist rewrites the COMMENTS field of VULN records in DISA STIG
Checklist (CKL) documents without building an XML tree.

A CKL document is handled as an opaque string. Records are the spans between
<VULN> and the first following </VULN>; everything outside a rewritten
COMMENTS interior is copied through byte for byte.

# Locating a field

A Locator is a compiled pattern with three groups: the record prefix up to
and including <COMMENTS>, the old interior, and </COMMENTS>. Locators are
evaluated against one record span at a time, so a record that lacks a
COMMENTS field can never borrow the field of the record after it.

	loc, err := checklist.NewVulnNumLocator("V-230221")
	loc := checklist.OpenLocator

Identifiers and statuses are quoted with regexp.QuoteMeta before they are
placed in a pattern.

# Rewriting

Apply rewrites every record a locator matches:

	out, n := checklist.Apply(doc, checklist.OpenLocator, "Tracked in POA&M")

MergeComments rewrites records by Vuln_Num from a map in a single sweep:

	out, stats := checklist.MergeComments(doc, map[string]string{
		"V-230221": "Looks fine",
	})

Replacement text is passed through EscapeReplacement, so '$' and '\' in a
comment land in the document verbatim.

# Errors

Failures are *Error values with codes READ_ERROR, PARSE_ERROR and
PATTERN_ERROR. Use IsRead, IsParse and IsPattern, or errors.Is with ErrRead,
ErrParse and ErrPattern.
*/
package checklist

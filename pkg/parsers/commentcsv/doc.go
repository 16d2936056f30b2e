/*
Package commentcsv ingests per-finding comment exports for checklist merges.

The expected input is a spreadsheet saved as CSV:

	Vuln_Num,Comment
	V-230221,Configured by baseline profile
	V-230222,Waiver on file

The first line is a header and is ignored. Each following line contributes
column 0 as the identifier and column 1 as the comment; extra columns are
ignored. Values are trimmed of surrounding whitespace.

The format is deliberately simple: there is no quoting, so a comma always
ends a column and a comment containing a comma is truncated there. Rows with
fewer than two columns, or an empty identifier, are skipped without error.
When an identifier repeats, the last row wins.

# Usage

	comments := commentcsv.Parse(text)

	res := commentcsv.ParseDetailed(text)
	fmt.Println(res.SkippedLines, res.Duplicates)
*/
package commentcsv

package checklist

import (
	"fmt"
	"sort"
	"strings"
)

var (
	replacementEscaper = strings.NewReplacer("$", "$$")
	xmlEscaper         = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// EscapeReplacement escapes text for use inside a regexp expansion template
// so that it is reproduced literally. Only '$' is a directive in Go
// templates; backslashes are already literal.
func EscapeReplacement(text string) string {
	return replacementEscaper.Replace(text)
}

// EscapeXML escapes the characters that would break the surrounding markup.
func EscapeXML(text string) string {
	return xmlEscaper.Replace(text)
}

// replacementTemplate keeps the prefix and closing delimiter groups and puts
// text in place of the interior.
func replacementTemplate(text string) string {
	return fmt.Sprintf("${%d}%s${%d}", groupPrefix, EscapeReplacement(text), groupSuffix)
}

// Apply replaces the COMMENTS interior of every record matched by loc with
// text and returns the new document together with the number of records
// rewritten. Records that loc does not match are copied verbatim.
func Apply(doc string, loc *Locator, text string) (string, int) {
	tmpl := replacementTemplate(text)
	return rewrite(doc, loc, func(string) (string, bool) {
		return tmpl, true
	})
}

// MergeStats describes one MergeComments sweep.
type MergeStats struct {
	Records   int
	Updated   int
	Unmatched []string
}

// MergeComments writes comments[id] into the COMMENTS field of every record
// whose Vuln_Num is id, in a single sweep over doc. Identifiers that match no
// record are reported in Unmatched, sorted.
func MergeComments(doc string, comments map[string]string) (string, MergeStats) {
	stats := MergeStats{Records: CountRecords(doc)}
	if len(comments) == 0 {
		return doc, stats
	}

	templates := make(map[string]string, len(comments))
	seen := make(map[string]bool, len(comments))
	out, n := rewrite(doc, CommentsLocator, func(record string) (string, bool) {
		id, found := vulnNum(record)
		if !found {
			return "", false
		}
		text, ok := comments[id]
		if !ok {
			return "", false
		}
		seen[id] = true
		tmpl, ok := templates[id]
		if !ok {
			tmpl = replacementTemplate(text)
			templates[id] = tmpl
		}
		return tmpl, true
	})
	stats.Updated = n
	stats.Unmatched = unmatched(comments, seen)
	return out, stats
}

// MergeCommentsSequential is MergeComments performed as one Apply pass per
// identifier, threading the document from pass to pass. Identifiers are
// visited in sorted order; the result equals MergeComments because each
// pass only touches the record its identifier names.
func MergeCommentsSequential(doc string, comments map[string]string) (string, MergeStats, error) {
	stats := MergeStats{Records: CountRecords(doc)}
	seen := make(map[string]bool, len(comments))
	for _, id := range sortedKeys(comments) {
		loc, err := NewVulnNumLocator(id)
		if err != nil {
			return "", MergeStats{}, err
		}
		var n int
		doc, n = Apply(doc, loc, comments[id])
		if n > 0 {
			seen[id] = true
			stats.Updated += n
		}
	}
	stats.Unmatched = unmatched(comments, seen)
	return doc, stats, nil
}

// rewrite sweeps the record spans of doc once. For each record matched by
// loc, tmplFor decides whether it is rewritten and with which expansion
// template. Output is assembled from slices of the source doc.
func rewrite(doc string, loc *Locator, tmplFor func(record string) (string, bool)) (string, int) {
	spans := recordSpans(doc)
	if len(spans) == 0 {
		return doc, 0
	}

	var (
		b    strings.Builder
		last int
		n    int
		dst  []byte
	)
	for _, span := range spans {
		record := doc[span[0]:span[1]]
		m := loc.match(record)
		if m == nil {
			continue
		}
		tmpl, ok := tmplFor(record)
		if !ok {
			continue
		}
		if n == 0 {
			b.Grow(len(doc))
		}
		b.WriteString(doc[last:span[0]])
		b.WriteString(record[:m[0]])
		dst = loc.re.ExpandString(dst[:0], tmpl, record, m)
		b.Write(dst)
		b.WriteString(record[m[1]:])
		last = span[1]
		n++
	}
	if n == 0 {
		return doc, 0
	}
	b.WriteString(doc[last:])
	return b.String(), n
}

func unmatched(comments map[string]string, seen map[string]bool) []string {
	var ids []string
	for id := range comments {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

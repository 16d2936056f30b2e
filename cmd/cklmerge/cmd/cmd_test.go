package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/cklmerge/internal/config"
	"github.com/openctemio/cklmerge/pkg/checklist"
	"github.com/openctemio/cklmerge/pkg/textio"
)

func vuln(id, status, comments string) string {
	return "<VULN><STIG_DATA><VULN_ATTRIBUTE>Vuln_Num</VULN_ATTRIBUTE><ATTRIBUTE_DATA>" + id +
		"</ATTRIBUTE_DATA></STIG_DATA><STATUS>" + status + "</STATUS><COMMENTS>" + comments +
		"</COMMENTS></VULN>\n"
}

func checklistText(records ...string) string {
	return "<CHECKLIST><STIGS><iSTIG>\n" + strings.Join(records, "") + "</iSTIG></STIGS></CHECKLIST>\n"
}

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, textio.WriteFile(path, text))
	return path
}

func readComments(t *testing.T, path string) map[string]string {
	t.Helper()
	text, err := textio.ReadFile(path, textio.DefaultLimits())
	require.NoError(t, err)
	out := make(map[string]string)
	for _, r := range checklist.Records(text) {
		out[r.VulnNum] = r.Comments
	}
	return out
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

type reportLine struct {
	Input     string   `json:"input"`
	Output    string   `json:"output"`
	Records   int      `json:"records"`
	Updated   int      `json:"updated"`
	Unmatched []string `json:"unmatched"`
	ErrorCode string   `json:"error_code"`
}

func TestMerge_WritesUpdatedCopy(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "comments.csv", "ID,Comment\nV-1,Reviewed\nV-9,Elsewhere\n")
	ckl := writeFile(t, dir, "macos.ckl", checklistText(vuln("V-1", "Open", ""), vuln("V-2", "Open", "keep")))

	stdout, _, err := runCLI(t, "merge", "--csv", csv, ckl, "-o", "json")
	require.NoError(t, err)

	var reports []reportLine
	require.NoError(t, json.Unmarshal([]byte(stdout), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, filepath.Join(dir, "Updated_macos.ckl"), reports[0].Output)
	assert.Equal(t, 2, reports[0].Records)
	assert.Equal(t, 1, reports[0].Updated)
	assert.Equal(t, []string{"V-9"}, reports[0].Unmatched)

	comments := readComments(t, reports[0].Output)
	assert.Equal(t, "Reviewed", comments["V-1"])
	assert.Equal(t, "keep", comments["V-2"])

	// The source is never modified.
	assert.Equal(t, "", readComments(t, ckl)["V-1"])
}

func TestMerge_SequentialStrategyFlag(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "c.csv", "ID,Comment\nV-1,a\n")
	ckl := writeFile(t, dir, "x.ckl", checklistText(vuln("V-1", "Open", "")))
	out := filepath.Join(dir, "result.ckl")

	_, _, err := runCLI(t, "merge", "--strategy", config.StrategySequential, "--csv", csv, "--out", out, ckl)
	require.NoError(t, err)
	assert.Equal(t, "a", readComments(t, out)["V-1"])

	_, _, err = runCLI(t, "merge", "--strategy", "parallel", "--csv", csv, "--out", out, ckl)
	assert.Error(t, err)
}

func TestMerge_RequiresCSV(t *testing.T) {
	_, _, err := runCLI(t, "merge", "x.ckl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv")
}

func TestMerge_CompressedInputs(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "c.csv.gz", "ID,Comment\nV-1,zipped\n")
	ckl := writeFile(t, dir, "x.ckl.zst", checklistText(vuln("V-1", "Open", "")))
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	_, _, err := runCLI(t, "merge", "--csv", csv, "--out-dir", outDir, ckl)
	require.NoError(t, err)

	assert.Equal(t, "zipped", readComments(t, filepath.Join(outDir, "Updated_x.ckl.zst"))["V-1"])
}

func TestOpen_StampsOpenFindings(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ckl", checklistText(vuln("V-1", "Open", ""), vuln("V-2", "NotAFinding", "")))
	b := writeFile(t, dir, "b.ckl", checklistText(vuln("V-3", "Open", "old")))

	stdout, stderr, err := runCLI(t, "open", a, b)
	require.NoError(t, err)

	assert.Contains(t, stdout, "INPUT")
	assert.Contains(t, stderr, "wrote checklist")
	assert.Contains(t, stderr, "input="+a)
	assert.Equal(t, config.DefaultOpenComment, readComments(t, filepath.Join(dir, "Updated_a.ckl"))["V-1"])
	assert.Equal(t, "", readComments(t, filepath.Join(dir, "Updated_a.ckl"))["V-2"])
	assert.Equal(t, config.DefaultOpenComment, readComments(t, filepath.Join(dir, "Updated_b.ckl"))["V-3"])
}

func TestOpen_CommentFileAndStatus(t *testing.T) {
	dir := t.TempDir()
	note := writeFile(t, dir, "note.txt", "Awaiting review\n")
	ckl := writeFile(t, dir, "a.ckl", checklistText(vuln("V-1", "Open", ""), vuln("V-2", "Not_Reviewed", "")))
	out := filepath.Join(dir, "done.ckl")

	_, _, err := runCLI(t, "open", "--status", "Not_Reviewed", "--comment-file", note, "--out", out, ckl)
	require.NoError(t, err)

	comments := readComments(t, out)
	assert.Equal(t, "", comments["V-1"])
	assert.Equal(t, "Awaiting review", comments["V-2"])
}

func TestOpen_RejectsUnknownStatus(t *testing.T) {
	_, _, err := runCLI(t, "open", "--status", "Closed", "a.ckl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Open.Status")
}

func TestOpen_FailingFileDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.ckl", checklistText(vuln("V-1", "Open", "")))
	missing := filepath.Join(dir, "missing.ckl")

	stdout, _, err := runCLI(t, "open", missing, good)
	require.Error(t, err)
	assert.True(t, checklist.IsRead(err))
	assert.Contains(t, stdout, "FAIL READ_ERROR")

	assert.Equal(t, config.DefaultOpenComment, readComments(t, filepath.Join(dir, "Updated_good.ckl"))["V-1"])
	_, statErr := os.Stat(filepath.Join(dir, "Updated_missing.ckl"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpen_WritesMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	ckl := writeFile(t, dir, "a.ckl", checklistText(vuln("V-1", "Open", "")))
	prom := filepath.Join(dir, "cklmerge.prom")
	t.Setenv("CKLMERGE_METRICS_TEXTFILE", prom)

	_, _, err := runCLI(t, "open", ckl)
	require.NoError(t, err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cklmerge_records_updated_total{mode="open"} 1`)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	ckl := writeFile(t, dir, "a.ckl", checklistText(vuln("V-1", "Open", "line one\nline two"), vuln("V-2", "NotAFinding", "")))

	stdout, _, err := runCLI(t, "inspect", ckl)
	require.NoError(t, err)
	assert.Contains(t, stdout, "VULN_NUM")
	assert.Contains(t, stdout, "line one line two")

	stdout, _, err = runCLI(t, "inspect", "--status", "NotAFinding", ckl, "-o", "json")
	require.NoError(t, err)

	var records []checklist.Record
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "V-2", records[0].VulnNum)
}

func TestConfigView(t *testing.T) {
	stdout, _, err := runCLI(t, "config", "view", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, stdout, "level: debug")
	assert.Contains(t, stdout, "strategy: single-pass")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, _, err := runCLI(t, "config", "view", "-o", "xml")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cklmerge version 1.2.3")
}

func TestDestinationResolve(t *testing.T) {
	tests := []struct {
		name    string
		dest    destination
		inputs  []string
		want    []string
		wantErr string
	}{
		{
			name:   "next to input",
			inputs: []string{"/a/x.ckl", "/b/y.ckl"},
			want:   []string{"/a/Updated_x.ckl", "/b/Updated_y.ckl"},
		},
		{
			name:   "out dir",
			dest:   destination{outDir: "/out"},
			inputs: []string{"/a/x.ckl"},
			want:   []string{"/out/Updated_x.ckl"},
		},
		{
			name:   "explicit out",
			dest:   destination{out: "/tmp/final.ckl"},
			inputs: []string{"/a/x.ckl"},
			want:   []string{"/tmp/final.ckl"},
		},
		{
			name:    "out with many inputs",
			dest:    destination{out: "/tmp/final.ckl"},
			inputs:  []string{"/a/x.ckl", "/a/y.ckl"},
			wantErr: "single input",
		},
		{
			name:    "out dir collision",
			dest:    destination{outDir: "/out"},
			inputs:  []string{"/a/x.ckl", "/b/x.ckl"},
			wantErr: "both write",
		},
		{
			name:    "out overwrites input",
			dest:    destination{out: "/a/x.ckl"},
			inputs:  []string{"/a/x.ckl"},
			wantErr: "overwrite its input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.dest.resolve(tt.inputs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutputHelpers(t *testing.T) {
	assert.Equal(t, "a b c", oneLine(" a\n b\t c "))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "-", dash(""))
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openctemio/cklmerge/internal/app/updater"
	"github.com/openctemio/cklmerge/pkg/checklist"
	"github.com/openctemio/cklmerge/pkg/logger"
	"github.com/openctemio/cklmerge/pkg/textio"
)

// destination decides where updated checklists are written.
type destination struct {
	out    string
	outDir string
}

func (d *destination) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.out, "out", "", "Write the result to FILE (single input only)")
	cmd.Flags().StringVar(&d.outDir, "out-dir", "", "Write results into DIR as Updated_<name>")
	cmd.MarkFlagsMutuallyExclusive("out", "out-dir")
}

// resolve maps each input to its output path. Two inputs may not share an
// output, and no output may overwrite an input.
func (d destination) resolve(inputs []string) ([]string, error) {
	if d.out != "" && len(inputs) > 1 {
		return nil, fmt.Errorf("--out accepts a single input, got %d", len(inputs))
	}

	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		seen[filepath.Clean(in)] = in
	}

	outputs := make([]string, len(inputs))
	for i, in := range inputs {
		out := d.out
		if out == "" {
			out = textio.OutputPath(in, d.outDir)
		}
		if prev, ok := seen[filepath.Clean(out)]; ok {
			if prev == in {
				return nil, fmt.Errorf("%s: output would overwrite its input", in)
			}
			return nil, fmt.Errorf("%s and %s both write %s", prev, in, out)
		}
		seen[filepath.Clean(out)] = in
		outputs[i] = out
	}
	return outputs, nil
}

// transformFunc turns one checklist's text into an updated result.
type transformFunc func(ctx context.Context, cklText string) (*updater.Result, error)

// fileReport is the per-input line of a run summary.
type fileReport struct {
	Input          string `json:"input" yaml:"input"`
	Output         string `json:"output,omitempty" yaml:"output,omitempty"`
	updater.Report `yaml:",inline"`
	Error          string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode      string `json:"error_code,omitempty" yaml:"error_code,omitempty"`
}

// process runs fn over every input with at most io.workers files in flight.
// A failing file does not stop the others; all failures are joined.
func (e *env) process(ctx context.Context, inputs []string, dest destination, fn transformFunc) ([]fileReport, error) {
	outputs, err := dest.resolve(inputs)
	if err != nil {
		return nil, err
	}

	reports := make([]fileReport, len(inputs))
	errs := make([]error, len(inputs))

	var g errgroup.Group
	g.SetLimit(e.cfg.IO.Workers)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			reports[i], errs[i] = e.processFile(ctx, input, outputs[i], fn)
			return nil
		})
	}
	_ = g.Wait()

	return reports, errors.Join(errs...)
}

func (e *env) processFile(ctx context.Context, input, output string, fn transformFunc) (fileReport, error) {
	rep := fileReport{Input: input}
	log := logger.FromContext(ctx).WithField("input", input)

	fail := func(err error) (fileReport, error) {
		rep.Error = err.Error()
		rep.ErrorCode = checklist.Code(err)
		return rep, fmt.Errorf("%s: %w", input, err)
	}

	text, err := textio.ReadFile(input, e.limits())
	if err != nil {
		return fail(err)
	}

	res, err := fn(ctx, text)
	if err != nil {
		return fail(err)
	}
	rep.Report = res.Report

	// The destination is only touched once the whole document is ready.
	if err := textio.WriteFile(output, res.Document); err != nil {
		return fail(err)
	}
	rep.Output = output

	log.Info("wrote checklist", "output", output, "updated", res.Report.Updated)
	return rep, nil
}

func (e *env) printReports(reports []fileReport) error {
	if ok, err := printStructured(e.stdout, e.format, reports); ok {
		return err
	}

	t := newTable(e.stdout, "INPUT", "OUTPUT", "RECORDS", "UPDATED", "UNMATCHED", "STATUS")
	for _, r := range reports {
		status := "OK"
		if r.Error != "" {
			status = "FAIL " + dash(r.ErrorCode)
		}
		t.AddRow(
			r.Input,
			dash(r.Output),
			strconv.Itoa(r.Records),
			strconv.Itoa(r.Updated),
			strconv.Itoa(len(r.Unmatched)),
			status,
		)
	}
	return t.Flush()
}

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/openctemio/cklmerge/internal/app/updater"
	"github.com/openctemio/cklmerge/pkg/textio"
)

func newMergeCmd(g *globalOptions) *cobra.Command {
	var (
		csvPath  string
		strategy string
		dest     destination
	)

	cmd := &cobra.Command{
		Use:   "merge --csv FILE CKL...",
		Short: "Merge CSV comments into checklist findings",
		Long: `Merge reviewer comments from a CSV export into checklist findings.

The CSV has a header line followed by "Vuln_Num,Comment" rows. Each comment
replaces the COMMENTS field of the finding with that Vuln_Num. Rows that
name no finding in a checklist leave it unchanged and are reported.`,
		Example: `  cklmerge merge --csv comments.csv macos.ckl
  cklmerge merge --csv comments.csv --out-dir out/ a.ckl b.ckl.gz
  cklmerge merge --csv comments.csv --out final.ckl macos.ckl -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer e.flushMetrics()

			if strategy != "" {
				e.cfg.Merge.Strategy = strategy
				if err := e.cfg.Validate(); err != nil {
					return err
				}
			}

			svc, err := updater.NewService(updater.OptionsFromConfig(e.cfg), e.log, e.metrics)
			if err != nil {
				return err
			}

			csvText, err := textio.ReadFile(csvPath, e.limits())
			if err != nil {
				return err
			}

			reports, runErr := e.process(cmd.Context(), args, dest, func(ctx context.Context, cklText string) (*updater.Result, error) {
				return svc.MergeComments(ctx, csvText, cklText)
			})
			if reports != nil {
				if err := e.printReports(reports); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file of Vuln_Num,Comment rows (required)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Merge strategy: single-pass, sequential (default from config)")
	_ = cmd.MarkFlagRequired("csv")
	dest.bind(cmd)
	return cmd
}

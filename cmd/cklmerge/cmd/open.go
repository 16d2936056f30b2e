package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openctemio/cklmerge/internal/app/updater"
	"github.com/openctemio/cklmerge/pkg/textio"
)

func newOpenCmd(g *globalOptions) *cobra.Command {
	var (
		comment     string
		commentFile string
		status      string
		dest        destination
	)

	cmd := &cobra.Command{
		Use:   "open CKL...",
		Short: "Stamp a fixed comment into every open finding",
		Long: `Replace the COMMENTS field of every finding whose STATUS is Open with a
fixed comment. The comment and the status can be changed with flags or in
the open section of the config file.`,
		Example: `  cklmerge open macos.ckl
  cklmerge open --comment "Tracked in POA&M" --out-dir out/ *.ckl
  cklmerge open --status Not_Reviewed --comment-file note.txt macos.ckl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer e.flushMetrics()

			if commentFile != "" {
				text, err := textio.ReadFile(commentFile, e.limits())
				if err != nil {
					return err
				}
				comment = strings.TrimRight(text, "\r\n")
			}
			if comment != "" {
				e.cfg.Open.Comment = comment
			}
			if status != "" {
				e.cfg.Open.Status = status
				if err := e.cfg.Validate(); err != nil {
					return err
				}
			}

			svc, err := updater.NewService(updater.OptionsFromConfig(e.cfg), e.log, e.metrics)
			if err != nil {
				return err
			}

			reports, runErr := e.process(cmd.Context(), args, dest, func(ctx context.Context, cklText string) (*updater.Result, error) {
				return svc.ApplyOpenComment(ctx, cklText)
			})
			if reports != nil {
				if err := e.printReports(reports); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "Comment to write (default from config)")
	cmd.Flags().StringVar(&commentFile, "comment-file", "", "Read the comment from FILE")
	cmd.Flags().StringVar(&status, "status", "", "Target STATUS: Open, NotAFinding, Not_Applicable, Not_Reviewed")
	cmd.MarkFlagsMutuallyExclusive("comment", "comment-file")
	dest.bind(cmd)
	return cmd
}

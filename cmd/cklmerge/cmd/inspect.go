package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openctemio/cklmerge/internal/app/updater"
	"github.com/openctemio/cklmerge/pkg/checklist"
	"github.com/openctemio/cklmerge/pkg/textio"
)

func newInspectCmd(g *globalOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "inspect CKL",
		Short: "List the findings of a checklist",
		Example: `  cklmerge inspect macos.ckl
  cklmerge inspect --status Open macos.ckl -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.setup(cmd)
			if err != nil {
				return err
			}

			svc, err := updater.NewService(updater.OptionsFromConfig(e.cfg), e.log, e.metrics)
			if err != nil {
				return err
			}

			text, err := textio.ReadFile(args[0], e.limits())
			if err != nil {
				return err
			}

			records, err := svc.Inspect(cmd.Context(), text)
			if err != nil {
				return err
			}
			records = filterStatus(records, status)

			if ok, err := printStructured(e.stdout, e.format, records); ok {
				return err
			}

			t := newTable(e.stdout, "VULN_NUM", "SEVERITY", "STATUS", "RULE_TITLE", "COMMENTS")
			for _, r := range records {
				t.AddRow(
					r.VulnNum,
					dash(r.Severity),
					dash(r.Status),
					truncate(oneLine(r.RuleTitle), 50),
					dash(truncate(oneLine(r.Comments), 40)),
				)
			}
			return t.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only list findings with this STATUS")
	return cmd
}

func filterStatus(records []checklist.Record, status string) []checklist.Record {
	if status == "" {
		return records
	}
	out := make([]checklist.Record, 0, len(records))
	for _, r := range records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

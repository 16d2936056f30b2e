package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/openctemio/cklmerge/internal/config"
	"github.com/openctemio/cklmerge/internal/metrics"
	"github.com/openctemio/cklmerge/pkg/logger"
	"github.com/openctemio/cklmerge/pkg/textio"
)

var version = "dev"

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	output     string
	verbose    bool
	logLevel   string
	logFormat  string
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "cklmerge",
		Short: "Merge review comments into STIG checklist files",
		Long: `cklmerge updates DISA STIG Viewer checklists (.ckl) in place of hand editing.

It can merge reviewer comments from a two-column CSV export into the
findings they belong to, or stamp a fixed comment into every finding
with a given status. Sources may be gzip or zstd compressed.

Results are written next to each input as Updated_<name> unless
--out or --out-dir says otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (default ~/.cklmerge/config.yaml, env: CKLMERGE_CONFIG)")
	pf.StringVarP(&g.output, "output", "o", outputTable, "Output format: table, json, yaml")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text, json")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMergeCmd(g))
	root.AddCommand(newOpenCmd(g))
	root.AddCommand(newInspectCmd(g))
	root.AddCommand(newConfigCmd(g))
	return root
}

// env is the per-invocation state built from flags and configuration.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	format  string
	stdout  io.Writer
}

func (g *globalOptions) setup(cmd *cobra.Command) (*env, error) {
	switch g.output {
	case outputTable, outputJSON, outputYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q (use table, json or yaml)", g.output)
	}

	path := g.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	log.SetDefault()
	cmd.SetContext(logger.ToContext(cmd.Context(), log))

	return &env{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		format:  g.output,
		stdout:  cmd.OutOrStdout(),
	}, nil
}

func (e *env) limits() textio.Limits {
	return textio.Limits{
		MaxInputBytes:       e.cfg.IO.MaxInputBytes,
		MaxCompressionRatio: e.cfg.IO.MaxCompressionRatio,
	}
}

// flushMetrics exports run metrics when a textfile destination is configured.
func (e *env) flushMetrics() {
	if e.cfg.Metrics.Textfile == "" {
		return
	}
	if err := e.metrics.WriteTextfile(e.cfg.Metrics.Textfile); err != nil {
		e.log.WithError(err).Warn("failed to write metrics textfile", "path", e.cfg.Metrics.Textfile)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "cklmerge version %s\n", version)
			fmt.Fprintf(w, "  Go:       %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/anonkl/internal/storage"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/models"
)

type RunsOptions struct {
	Limit        int
	OutputFormat string
}

func NewRunsCmd(global *GlobalOptions) *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded anonymization runs",
		Long: `List the most recent runs recorded in the Postgres report store
(storage.postgres.* in the configuration).`,
		Example: `  # Last 20 runs
  anonkl runs

  # Last 5 runs as JSON
  anonkl runs --limit 5 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, global, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "text", "Output format (text, json)")

	return cmd
}

func runRuns(cmd *cobra.Command, global *GlobalOptions, opts *RunsOptions) error {
	if opts.Limit <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange, "limit must be a positive integer")
	}
	if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
		return fmt.Errorf("unsupported output format %q", opts.OutputFormat)
	}

	cfg, logger, err := global.setup(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	reports, err := storage.NewFactory(logger).CreateReportStore(ctx, cfg.StorageConfig())
	if err != nil {
		return err
	}
	if reports == nil {
		return errors.NewConfigurationError(errors.CodeInvalidInput,
			"no report store configured: set storage.postgres.host")
	}
	defer reports.Close()

	runs, err := reports.ListRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.OutputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}

	printRuns(out, runs)
	return nil
}

func printRuns(w io.Writer, runs []*models.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tK\tL\tSTATUS\tLEVEL\tPRECISION\tRECORDS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%d\t%s\t%d\n",
			run.RunID, run.StartedAt.Format(time.RFC3339), run.K, run.L, run.Status, run.Level,
			formatPrecision(run.PrecisionDefined, run.Precision), run.Records)
	}
	tw.Flush()
}

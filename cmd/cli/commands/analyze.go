package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inferloop/anonkl/internal/ingest"
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/reporting"
	"github.com/inferloop/anonkl/pkg/models"
)

type AnalyzeOptions struct {
	Top          int
	ChartsDir    string
	OutputFormat string
	Separator    string
}

func NewAnalyzeCmd(global *GlobalOptions) *cobra.Command {
	opts := &AnalyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze INPUT",
		Short: "Summarize the equivalence classes of an anonymized CSV",
		Long: `Compute class size and raca_cor diversity statistics for an anonymized
CSV and optionally render the class size and diversity charts.`,
		Example: `  # Text summary
  anonkl analyze dados_anonimizados_k4_l3.csv

  # JSON summary with charts
  anonkl analyze dados_anonimizados_k4_l3.csv --format json --charts graficos`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Top, "top", reporting.DefaultTopClasses, "Number of largest classes to list")
	cmd.Flags().StringVar(&opts.ChartsDir, "charts", "", "Directory to write the PNG charts to")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "text", "Output format (text, json)")
	cmd.Flags().StringVarP(&opts.Separator, "separator", "s", "", "CSV separator (default ';')")

	return cmd
}

func runAnalyze(cmd *cobra.Command, global *GlobalOptions, opts *AnalyzeOptions, input string) error {
	if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
		return fmt.Errorf("unsupported output format %q", opts.OutputFormat)
	}

	cfg, logger, err := global.setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("separator") {
		cfg.Input.Separator = opts.Separator
	}

	load, err := cfg.LoadOptions()
	if err != nil {
		return err
	}
	load.Duplicate = 1

	dataset, err := ingest.NewLoader(load, logger).LoadFile(commandContext(cmd), input)
	if err != nil {
		return err
	}

	classes := privacy.GroupClasses(dataset.Records, privacy.DefaultQuasiIdentifiers(), models.AttributeRaceColor)
	summary := reporting.SummarizeClasses(classes, opts.Top)

	if opts.ChartsDir != "" {
		if err := writeCharts(opts.ChartsDir, classes, opts.Top); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.OutputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	printSummary(out, summary)
	return nil
}

func writeCharts(dir string, classes []*privacy.EquivalenceClass, top int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create charts directory: %w", err)
	}

	sizes, err := os.Create(filepath.Join(dir, "class_sizes.png"))
	if err != nil {
		return err
	}
	defer sizes.Close()
	if err := reporting.RenderClassSizeChart(sizes, classes, top, "Maiores classes de equivalência"); err != nil {
		return err
	}

	diversity, err := os.Create(filepath.Join(dir, "diversity.png"))
	if err != nil {
		return err
	}
	defer diversity.Close()
	return reporting.RenderDiversityHistogram(diversity, privacy.DiversityHistogram(classes), "Diversidade de raça/cor por classe")
}

func printSummary(w io.Writer, summary reporting.Summary) {
	fmt.Fprintln(w, "Equivalence classes")
	fmt.Fprintln(w, "===================")
	fmt.Fprintf(w, "Records:          %d\n", summary.Records)
	fmt.Fprintf(w, "Classes:          %d\n", summary.Classes)
	fmt.Fprintf(w, "Class size:       mean %.2f, stddev %.2f, median %.1f, min %.0f, max %.0f\n",
		summary.MeanClassSize, summary.StdDevClassSize, summary.MedianClassSize, summary.MinClassSize, summary.MaxClassSize)
	fmt.Fprintf(w, "Mean diversity:   %.2f\n", summary.MeanDiversity)

	diversities := make([]int, 0, len(summary.DiversityHistogram))
	for diversity := range summary.DiversityHistogram {
		diversities = append(diversities, diversity)
	}
	sort.Ints(diversities)

	fmt.Fprintln(w, "\nClasses per distinct raca_cor count:")
	for _, diversity := range diversities {
		fmt.Fprintf(w, "  %d: %d\n", diversity, summary.DiversityHistogram[diversity])
	}

	fmt.Fprintln(w, "\nLargest classes:")
	for _, class := range summary.TopClasses {
		fmt.Fprintf(w, "  %-40s size %d, diversity %d\n", strings.Join(class.Values, " | "), class.Size, class.Diversity)
	}
}

package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type AnonymizeOptions struct {
	RunOptions
	K int
	L int
}

func NewAnonymizeCmd(global *GlobalOptions) *cobra.Command {
	opts := &AnonymizeOptions{}

	cmd := &cobra.Command{
		Use:   "anonymize INPUT",
		Short: "Anonymize a CSV of health records for one k/l pair",
		Long: `Generalize localidade and data_nascimento level by level until every
equivalence class holds at least k records and l distinct raca_cor values.
nome and cpf are always suppressed. The anonymized CSV, the JSON report and
the charts are written to the configured artifact store.`,
		Example: `  # k=2 with the default output directory
  anonkl anonymize dados.csv --k 2

  # k=4, l=3, suppressing what still violates after the last level
  anonkl anonymize dados.csv --k 4 --l 3 --suppress --output resultados

  # Keep dates at month precision at most
  anonkl anonymize dados.csv --k 8 --max-level-data-nascimento 1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnonymize(cmd, global, opts, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.K, "k", "k", 0, "Minimum equivalence class size")
	cmd.Flags().IntVarP(&opts.L, "l", "l", 0, "Minimum distinct raca_cor values per class (0 or 1 disables)")
	opts.bind(cmd)

	return cmd
}

func runAnonymize(cmd *cobra.Command, global *GlobalOptions, opts *AnonymizeOptions, input string) error {
	cfg, logger, err := global.setup(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("k") {
		cfg.K = opts.K
	}
	if cmd.Flags().Changed("l") {
		cfg.L = opts.L
	}
	opts.apply(cmd, cfg)

	runConfig, err := cfg.RunConfig()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	s, err := openSession(ctx, cfg, logger, opts.DryRun)
	if err != nil {
		return err
	}
	defer s.Close()

	dataset, err := s.loader.LoadFile(ctx, input)
	if err != nil {
		return err
	}

	result, err := s.anonymizer.Run(ctx, dataset, runConfig)
	if err != nil {
		return err
	}

	report, err := s.publish(ctx, result)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"run_id":    result.RunID,
		"status":    result.Status,
		"artifacts": len(report.Artifacts),
	}).Debug("Run published")

	printResult(cmd.OutOrStdout(), result, report)

	return result.Err()
}

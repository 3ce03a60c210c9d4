package commands

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/anonkl/internal/config"
	"github.com/inferloop/anonkl/pkg/constants"
)

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigFile string
	Verbose    bool
	LogLevel   string
	LogFormat  string
}

// NewRootCmd builds the anonkl command tree.
func NewRootCmd() *cobra.Command {
	global := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "k-anonymity and l-diversity anonymizer for health records",
		Long: `Anonymize health records by generalizing location and date of birth
until every equivalence class holds at least k records and l distinct
race/color values.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&global.ConfigFile, "config", "", "config file (default is $HOME/.anonkl/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&global.LogFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(NewAnonymizeCmd(global))
	cmd.AddCommand(NewSweepCmd(global))
	cmd.AddCommand(NewValidateCmd(global))
	cmd.AddCommand(NewAnalyzeCmd(global))
	cmd.AddCommand(NewRunsCmd(global))

	return cmd
}

// setup loads the configuration and builds a logger writing to the
// command's stderr, leaving stdout to the command output.
func (g *GlobalOptions) setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(g.ConfigFile)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	if g.Verbose {
		level = "debug"
	}
	format := cfg.Log.Format
	if g.LogFormat != "" {
		format = g.LogFormat
	}

	return cfg, config.NewLogger(level, format, cmd.ErrOrStderr()), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

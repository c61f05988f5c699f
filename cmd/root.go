package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/signalnine/rftgrader/internal/config"
	"github.com/signalnine/rftgrader/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	logger   = zerolog.Nop()
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rftgrader",
		Short:        "Build, check and run fuzzy-match graders for reinforcement fine-tuning",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(cmd.ErrOrStderr(), logLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(newSpecCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newEvalCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newListCmd())
	return root
}

// loadConfig reads --config, falling back to defaults when the default
// path is absent, and exports the configured secrets file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.LoadSecrets(); err != nil {
		logger.Warn().Err(err).Msg("could not load secrets")
	}
	return cfg, nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/rftgrader/internal/config"
	"github.com/signalnine/rftgrader/internal/eval"
	"github.com/signalnine/rftgrader/internal/grader"
	"github.com/signalnine/rftgrader/internal/pricing"
	"github.com/signalnine/rftgrader/internal/result"
	"github.com/signalnine/rftgrader/internal/rft"
	"github.com/signalnine/rftgrader/internal/rollout"
	"github.com/signalnine/rftgrader/internal/runner"
)

var (
	flagDataset   string
	flagParallel  int
	flagRollout   string
	flagModel     string
	flagThreshold float64
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score a dataset locally with the configured scorer",
		RunE:  runEval,
	}
	cmd.Flags().StringVar(&flagDataset, "dataset", "", "rows file (.yaml or .jsonl); the built-in demo row when empty")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent rows")
	cmd.Flags().StringVar(&flagRollout, "rollout", "noop", "rollout processor (noop, chat)")
	cmd.Flags().StringVar(&flagModel, "model", "", "chat model for --rollout chat")
	cmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "fail when the mean score is below this value")
	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyEvalFlags(cmd, cfg); err != nil {
		return err
	}

	rows := eval.DemoRows()
	if cfg.Eval.Dataset != "" {
		rows, err = eval.LoadRows(cfg.Eval.Dataset)
		if err != nil {
			return err
		}
	}
	scorer, ok := grader.Lookup(cfg.Grader.Scorer)
	if !ok {
		return fmt.Errorf("unknown scorer %q", cfg.Grader.Scorer)
	}
	proc, err := newProcessor(cfg)
	if err != nil {
		return err
	}

	var table *pricing.Table
	if cfg.Results.Pricing != "" {
		table, err = pricing.Load(cfg.Results.Pricing)
		if err != nil {
			return err
		}
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	logger.Info().Str("run_dir", runDir).Int("rows", len(rows)).Msg("evaluating")

	summary, err := runner.Evaluate(cmd.Context(), runner.Options{
		Rows:     rows,
		Scorer:   scorer,
		Rollout:  proc,
		Parallel: cfg.Eval.Parallel,
		RunDir:   runDir,
		Pricing:  table,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s mean score: %.4f (%d scored, %d failed)\n",
		summary.Grader, summary.MeanScore, summary.Scored, summary.Failed)
	if summary.Scored == 0 {
		return fmt.Errorf("no rows could be scored")
	}
	if t := cfg.Eval.Threshold; t > 0 && summary.MeanScore < t {
		return fmt.Errorf("mean score %.4f below threshold %.4f", summary.MeanScore, t)
	}
	return nil
}

// applyEvalFlags lets explicitly set flags override the config file and
// validates the result.
func applyEvalFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		cfg.Eval.Dataset = flagDataset
	}
	if flags.Changed("parallel") {
		cfg.Eval.Parallel = flagParallel
	}
	if flags.Changed("rollout") {
		cfg.Rollout.Processor = flagRollout
	}
	if flags.Changed("model") {
		cfg.Rollout.Model = flagModel
	}
	if flags.Changed("threshold") {
		cfg.Eval.Threshold = flagThreshold
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid eval flags: %w", err)
	}
	return nil
}

func newProcessor(cfg *config.Config) (rollout.Processor, error) {
	switch cfg.Rollout.Processor {
	case "", "noop":
		return rollout.NoOp{}, nil
	case "chat":
		key, err := rft.APIKeyFromEnv(cfg.API.KeyEnv)
		if err != nil {
			return nil, err
		}
		return rollout.NewChat(rollout.NewOpenAIClient(key, cfg.API.BaseURL), rollout.ChatOptions{
			Model:       cfg.Rollout.Model,
			MaxTokens:   cfg.Rollout.MaxTokens,
			Temperature: cfg.Rollout.Temperature,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown rollout processor %q", cfg.Rollout.Processor)
	}
}

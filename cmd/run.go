package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/rftgrader/internal/config"
	"github.com/signalnine/rftgrader/internal/grader"
	"github.com/signalnine/rftgrader/internal/rft"
	"github.com/signalnine/rftgrader/internal/sandbox"
)

var (
	flagReference string
	flagSample    string
	flagLocal     bool
	flagValidate  bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the grader once against a reference answer and a model sample",
		Long: "Send the grader spec with one item and one model sample to the fine-tuning " +
			"service and print the raw response. With --validate the grader spec is validated first. " +
			"With --local the grader runs in a local container instead.",
		RunE: runGrader,
	}
	cmd.Flags().StringVar(&flagReference, "reference", "", "reference answer (default from config)")
	cmd.Flags().StringVar(&flagSample, "sample", "", "model sample to grade (default from config)")
	cmd.Flags().BoolVar(&flagLocal, "local", false, "run the grader in a local Docker container")
	cmd.Flags().BoolVar(&flagValidate, "validate", false, "validate the grader spec before running it")
	addResponseFlags(cmd)
	return cmd
}

func runGrader(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reference, sample := runInputs(cfg)

	if flagLocal {
		spec, err := buildSpec(converter, cfg.Grader.Scorer)
		if err != nil {
			return err
		}
		return runLocal(cmd, cfg, spec, reference, sample)
	}

	client, err := newRFTClient(cfg)
	if err != nil {
		return err
	}
	spec, err := buildSpec(converter, cfg.Grader.Scorer)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	sink := &responseSink{cfg: cfg}

	if flagValidate {
		resp, err := client.Validate(cmd.Context(), spec)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "validate response: %s\n", resp.Body)
		if err := sink.handle("validate", resp); err != nil {
			return err
		}
	}

	resp, err := client.Run(cmd.Context(), &rft.RunRequest{
		Grader:      spec,
		Item:        map[string]any{"reference_answer": reference},
		ModelSample: sample,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run response: %s\n", resp.Body)
	return sink.handle("run", resp)
}

func runInputs(cfg *config.Config) (reference, sample string) {
	reference, sample = cfg.Grader.ReferenceAnswer, cfg.Grader.ModelSample
	if flagReference != "" {
		reference = flagReference
	}
	if flagSample != "" {
		sample = flagSample
	}
	return reference, sample
}

func runLocal(cmd *cobra.Command, cfg *config.Config, spec *grader.GraderSpec, reference, sample string) error {
	res, err := sandbox.Grade(cmd.Context(), spec,
		map[string]any{"output_text": sample},
		map[string]any{"reference_answer": reference},
		sandbox.Options{
			Image:   cfg.Sandbox.Image,
			Timeout: time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
			Logger:  logger,
		})
	if err != nil {
		if res != nil && res.Logs != "" {
			logger.Error().Int("exit_code", res.ExitCode).Bool("timed_out", res.TimedOut).Msg("local grader failed")
			fmt.Fprintln(cmd.ErrOrStderr(), res.Logs)
		}
		return err
	}
	logger.Info().Dur("duration", res.Duration).Msg("local grader finished")
	fmt.Fprintf(cmd.OutOrStdout(), "local run score: %g\n", res.Score)
	return nil
}

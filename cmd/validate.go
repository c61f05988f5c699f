package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/rftgrader/internal/config"
	"github.com/signalnine/rftgrader/internal/rft"
	"github.com/signalnine/rftgrader/internal/result"
)

var (
	flagStrict bool
	flagSave   bool
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Ask the fine-tuning service to validate the grader spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newRFTClient(cfg)
			if err != nil {
				return err
			}
			spec, err := buildSpec(converter, cfg.Grader.Scorer)
			if err != nil {
				return err
			}
			resp, err := client.Validate(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validate response: %s\n", resp.Body)
			return (&responseSink{cfg: cfg}).handle("validate", resp)
		},
	}
	addResponseFlags(cmd)
	return cmd
}

func addResponseFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagStrict, "strict", false, "fail when the service answers with a non-2xx status")
	cmd.Flags().BoolVar(&flagSave, "save", false, "store the response in a new run directory")
}

// newRFTClient reads the API key before anything else so a missing key
// aborts without a network call.
func newRFTClient(cfg *config.Config) (*rft.Client, error) {
	key, err := rft.APIKeyFromEnv(cfg.API.KeyEnv)
	if err != nil {
		return nil, err
	}
	return rft.NewClient(rft.Options{
		BaseURL: cfg.API.BaseURL,
		APIKey:  key,
		Logger:  logger,
	})
}

// responseSink logs and optionally stores grader responses. All responses
// of one command share a run directory. Non-2xx statuses only fail the
// command under --strict.
type responseSink struct {
	cfg    *config.Config
	runDir string
}

func (s *responseSink) handle(name string, resp *rft.Response) error {
	ev := logger.Info()
	if !resp.OK() {
		ev = logger.Warn()
	}
	ev = ev.Str("endpoint", resp.Endpoint).Int("status", resp.StatusCode)
	if resp.RequestID != "" {
		ev = ev.Str("request_id", resp.RequestID)
	}
	reward, hasReward := resp.Reward()
	if hasReward {
		ev = ev.Float64("reward", reward)
	}
	errs := resp.Errors()
	if len(errs) > 0 {
		ev = ev.Strs("grader_errors", errs)
	}
	ev.Msg(name + " finished")

	if flagSave {
		rec := &result.CallRecord{
			Endpoint:        resp.Endpoint,
			StatusCode:      resp.StatusCode,
			Body:            resp.Body,
			RequestID:       resp.RequestID,
			ClientRequestID: resp.ClientRequestID,
			Errors:          errs,
			At:              time.Now().UTC(),
		}
		if hasReward {
			rec.Reward = &reward
		}
		if err := s.save(name, rec); err != nil {
			return err
		}
	}
	if flagStrict {
		return resp.Err()
	}
	return nil
}

func (s *responseSink) save(name string, rec *result.CallRecord) error {
	if s.runDir == "" {
		runDir, err := result.CreateRunDir(s.cfg.Results.Dir)
		if err != nil {
			return err
		}
		s.runDir = runDir
	}
	if err := result.WriteCallRecord(s.runDir, name, rec); err != nil {
		return err
	}
	logger.Info().Str("run_dir", s.runDir).Msg("response saved")
	return nil
}

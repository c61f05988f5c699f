package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/signalnine/rftgrader/internal/eval"
	"github.com/signalnine/rftgrader/internal/grader"
	"github.com/signalnine/rftgrader/internal/pricing"
	"github.com/signalnine/rftgrader/internal/result"
	"github.com/signalnine/rftgrader/internal/rollout"
)

type Options struct {
	Rows     []*eval.EvaluationRow
	Scorer   grader.Scorer
	Rollout  rollout.Processor
	Parallel int
	// RunDir receives one row file per result when set.
	RunDir  string
	Pricing *pricing.Table
	Logger  zerolog.Logger
}

// Summary aggregates a pointwise evaluation with the mean.
type Summary struct {
	Grader    string
	Rows      int
	Scored    int
	Failed    int
	MeanScore float64
	Results   []*result.RowResult
}

// Evaluate rolls out and scores every row through the pool. Row failures
// are recorded in their RowResult and excluded from the mean; only storage
// errors and cancellation are returned.
func Evaluate(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Scorer == nil {
		return nil, fmt.Errorf("evaluate: no scorer")
	}
	if len(opts.Rows) == 0 {
		return nil, fmt.Errorf("evaluate: no rows")
	}
	proc := opts.Rollout
	if proc == nil {
		proc = rollout.NoOp{}
	}

	results := make([]*result.RowResult, len(opts.Rows))
	var mu sync.Mutex
	jobs := make([]Job, len(opts.Rows))
	for i, row := range opts.Rows {
		jobs[i] = func(ctx context.Context) error {
			rr := evaluateRow(ctx, i, row, proc, opts)
			mu.Lock()
			results[i] = rr
			mu.Unlock()
			if opts.RunDir != "" {
				if err := result.WriteRowResult(opts.RunDir, rr); err != nil {
					return fmt.Errorf("row %d: %w", i, err)
				}
			}
			return nil
		}
	}

	errs := RunPool(ctx, opts.Parallel, jobs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("evaluate: %d job(s) failed, first: %w", len(errs), errs[0])
	}

	s := &Summary{Grader: opts.Scorer.Name(), Rows: len(results), Results: results}
	var total float64
	for _, rr := range results {
		if rr.Failed() {
			s.Failed++
			continue
		}
		s.Scored++
		total += rr.Score
	}
	if s.Scored > 0 {
		s.MeanScore = total / float64(s.Scored)
	}
	opts.Logger.Info().
		Str("grader", s.Grader).
		Int("rows", s.Rows).
		Int("failed", s.Failed).
		Float64("mean_score", s.MeanScore).
		Msg("evaluation finished")
	return s, nil
}

func evaluateRow(ctx context.Context, index int, row *eval.EvaluationRow, proc rollout.Processor, opts Options) *result.RowResult {
	rr := &result.RowResult{
		Grader:    opts.Scorer.Name(),
		Index:     index,
		Reference: row.Reference(),
	}
	rolled, err := proc.Rollout(ctx, row.Clone())
	if err != nil {
		rr.Error = err.Error()
		opts.Logger.Warn().Err(err).Int("row", index).Msg("rollout failed")
		return rr
	}
	if u := rolled.Usage; u != nil {
		rr.Model = u.Model
		rr.PromptTokens = u.PromptTokens
		rr.CompletionTokens = u.CompletionTokens
		rr.CostUSD = opts.Pricing.Cost(u.Model, u.PromptTokens, u.CompletionTokens)
	}

	scored := opts.Scorer.Evaluate(rolled)
	rr.Prediction = scored.LastAssistantText()
	if scored.EvaluationResult == nil {
		rr.Error = "scorer attached no result"
		return rr
	}
	rr.Score = scored.EvaluationResult.Score
	opts.Logger.Debug().Int("row", index).Float64("score", rr.Score).Msg("row scored")
	return rr
}

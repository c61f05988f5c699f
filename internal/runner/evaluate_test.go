package runner_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/rftgrader/internal/eval"
	"github.com/signalnine/rftgrader/internal/grader"
	"github.com/signalnine/rftgrader/internal/pricing"
	"github.com/signalnine/rftgrader/internal/result"
	"github.com/signalnine/rftgrader/internal/runner"
)

type replyProcessor struct {
	reply string
	fail  map[string]bool
}

func (p replyProcessor) Rollout(_ context.Context, row *eval.EvaluationRow) (*eval.EvaluationRow, error) {
	if p.fail[row.Reference()] {
		return nil, errors.New("upstream unavailable")
	}
	row.Messages = append(row.Messages, eval.TextMessage(eval.RoleAssistant, p.reply))
	row.Usage = &eval.Usage{Model: "gpt-4o-mini", PromptTokens: 1000, CompletionTokens: 1000}
	return row, nil
}

func userRow(prompt, truth string) *eval.EvaluationRow {
	return &eval.EvaluationRow{
		Messages:    []eval.Message{eval.TextMessage(eval.RoleUser, prompt)},
		GroundTruth: &truth,
	}
}

func TestEvaluateDemoRow(t *testing.T) {
	summary, err := runner.Evaluate(context.Background(), runner.Options{
		Rows:   eval.DemoRows(),
		Scorer: grader.FuzzyScorer{},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, "rapidfuzz", summary.Grader)
	assert.Equal(t, 1, summary.Scored)
	assert.Zero(t, summary.Failed)
	assert.InDelta(t, 34.0/45.0, summary.MeanScore, 1e-12)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "fuzzy wuzzy was a bear", summary.Results[0].Prediction)
}

func TestEvaluateWritesRows(t *testing.T) {
	runDir := t.TempDir()
	table := &pricing.Table{Providers: map[string]map[string]pricing.ModelPricing{
		"openai": {"gpt-4o-mini": {Input: 0.00015, Output: 0.0006}},
	}}
	rows := []*eval.EvaluationRow{
		userRow("q1", "paris"),
		userRow("q2", "london"),
		userRow("q3", "berlin"),
	}
	summary, err := runner.Evaluate(context.Background(), runner.Options{
		Rows:     rows,
		Scorer:   grader.FuzzyScorer{},
		Rollout:  replyProcessor{reply: "paris"},
		Parallel: 2,
		RunDir:   runDir,
		Pricing:  table,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scored)

	first, err := result.ReadRowResult(result.RowPath(runDir, "rapidfuzz", 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.Score)
	assert.Equal(t, "gpt-4o-mini", first.Model)
	assert.InDelta(t, 0.00075, first.CostUSD, 1e-12)

	for i := range rows {
		_, err := result.ReadRowResult(result.RowPath(runDir, "rapidfuzz", i))
		assert.NoError(t, err, "row %d", i)
	}
	// Input rows are not mutated by the rollout.
	assert.Len(t, rows[0].Messages, 1)
}

func TestEvaluateRolloutFailureExcludedFromMean(t *testing.T) {
	rows := []*eval.EvaluationRow{userRow("q1", "paris"), userRow("q2", "rome")}
	summary, err := runner.Evaluate(context.Background(), runner.Options{
		Rows:    rows,
		Scorer:  grader.FuzzyScorer{},
		Rollout: replyProcessor{reply: "paris", fail: map[string]bool{"rome": true}},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scored)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1.0, summary.MeanScore)
	assert.True(t, summary.Results[1].Failed())
	assert.Contains(t, summary.Results[1].Error, "upstream unavailable")
}

func TestEvaluateScoresWithinBounds(t *testing.T) {
	rows := []*eval.EvaluationRow{
		userRow("a", "completely different"),
		userRow("b", ""),
		{Messages: []eval.Message{eval.TextMessage(eval.RoleUser, "no truth")}},
	}
	summary, err := runner.Evaluate(context.Background(), runner.Options{
		Rows:    rows,
		Scorer:  grader.FuzzyScorer{},
		Rollout: replyProcessor{reply: "xyz"},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	for _, rr := range summary.Results {
		assert.False(t, math.IsNaN(rr.Score))
		assert.GreaterOrEqual(t, rr.Score, 0.0)
		assert.LessOrEqual(t, rr.Score, 1.0)
	}
}

func TestEvaluateErrors(t *testing.T) {
	_, err := runner.Evaluate(context.Background(), runner.Options{Rows: eval.DemoRows()})
	assert.Error(t, err)

	_, err = runner.Evaluate(context.Background(), runner.Options{Scorer: grader.FuzzyScorer{}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runner.Evaluate(ctx, runner.Options{
		Rows:   eval.DemoRows(),
		Scorer: grader.FuzzyScorer{},
		Logger: zerolog.Nop(),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

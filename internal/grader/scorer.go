// Package grader holds the row scorers and converts them into Python
// grader specs the fine-tuning service can execute on its own.
package grader

import (
	"sort"

	"github.com/signalnine/rftgrader/internal/eval"
	"github.com/signalnine/rftgrader/internal/fuzz"
)

// Scorer attaches an EvaluateResult to a row and returns it.
type Scorer interface {
	Name() string
	Evaluate(row *eval.EvaluationRow) *eval.EvaluationRow
}

// PythonFunc is a self-contained Python function that scores a row object
// exposing .messages, .ground_truth and .evaluation_result.
type PythonFunc struct {
	Name string
	Body string
}

// SourceProvider is implemented by scorers that can be shipped as Python.
type SourceProvider interface {
	PythonFunc() PythonFunc
}

// FuzzyScorer compares the last assistant message to the ground truth with
// WRatio after default processing and scales the result to [0, 1].
type FuzzyScorer struct{}

var (
	_ Scorer         = FuzzyScorer{}
	_ SourceProvider = FuzzyScorer{}
)

func (FuzzyScorer) Name() string { return "rapidfuzz" }

func (FuzzyScorer) Evaluate(row *eval.EvaluationRow) *eval.EvaluationRow {
	prediction := row.LastAssistantText()
	score := fuzz.WRatio(prediction, row.Reference(), fuzz.WithProcessor(fuzz.DefaultProcess)) / 100.0
	row.EvaluationResult = &eval.EvaluateResult{Score: score}
	return row
}

func (FuzzyScorer) PythonFunc() PythonFunc {
	return PythonFunc{Name: "rapidfuzz_eval", Body: rapidfuzzBody}
}

const rapidfuzzBody = `def rapidfuzz_eval(row):
    reference = row.ground_truth if row.ground_truth is not None else ""

    assistant_msgs = [m for m in row.messages if m.role == "assistant"]
    last_assistant_content = assistant_msgs[-1].content if assistant_msgs else ""
    prediction = last_assistant_content if isinstance(last_assistant_content, str) else ""

    from rapidfuzz import fuzz, utils

    score = float(
        fuzz.WRatio(
            str(prediction),
            str(reference),
            processor=utils.default_process,
        )
        / 100.0
    )
    row.evaluation_result = EvaluateResult(score=score)
    return row
`

var registry = map[string]Scorer{
	FuzzyScorer{}.Name(): FuzzyScorer{},
}

// Lookup returns the registered scorer with the given name.
func Lookup(name string) (Scorer, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names lists the registered scorers in name order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/rftgrader/internal/pricing"
	"github.com/signalnine/rftgrader/internal/result"
)

// PassScore is the score a row needs to count as passed.
const PassScore = 0.5

type GraderSummary struct {
	Name        string  `json:"name"`
	Rows        int     `json:"rows"`
	Failed      int     `json:"failed"`
	PassRate    float64 `json:"pass_rate"`
	MeanScore   float64 `json:"mean_score"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	MeanTokens  float64 `json:"mean_tokens"`
	MeanCostUSD float64 `json:"mean_cost_usd"`
}

// Generate reads row results and produces a summary report.
func Generate(runDir, format string, w io.Writer, pricingPath ...string) error {
	rows, err := collectRows(runDir)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no row results under %s", runDir)
	}

	if len(pricingPath) > 0 && pricingPath[0] != "" {
		if err := enrichCosts(rows, pricingPath[0]); err != nil {
			return err
		}
	}

	summaries := aggregate(rows)

	switch format {
	case "markdown":
		return writeMarkdown(summaries, w)
	case "json":
		return writeJSON(summaries, w)
	default:
		return writeTable(summaries, w)
	}
}

func collectRows(runDir string) ([]*result.RowResult, error) {
	var rows []*result.RowResult
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match("row-*.json", info.Name()); ok {
			row, err := result.ReadRowResult(path)
			if err != nil {
				return nil
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

func aggregate(rows []*result.RowResult) []GraderSummary {
	type accum struct {
		count, failed, passed int
		score, min, max       float64
		tokens, cost          float64
	}
	byGrader := map[string]*accum{}

	for _, r := range rows {
		a, ok := byGrader[r.Grader]
		if !ok {
			a = &accum{min: 1, max: 0}
			byGrader[r.Grader] = a
		}
		a.count++
		a.tokens += float64(r.PromptTokens + r.CompletionTokens)
		a.cost += r.CostUSD
		if r.Failed() {
			a.failed++
			continue
		}
		a.score += r.Score
		a.min = min(a.min, r.Score)
		a.max = max(a.max, r.Score)
		if r.Score >= PassScore {
			a.passed++
		}
	}

	var summaries []GraderSummary
	for name, a := range byGrader {
		s := GraderSummary{
			Name:        name,
			Rows:        a.count,
			Failed:      a.failed,
			PassRate:    float64(a.passed) / float64(a.count),
			MeanTokens:  a.tokens / float64(a.count),
			MeanCostUSD: a.cost / float64(a.count),
		}
		if scored := a.count - a.failed; scored > 0 {
			s.MeanScore = a.score / float64(scored)
			s.MinScore = a.min
			s.MaxScore = a.max
		}
		summaries = append(summaries, s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// enrichCosts reprices rows from their recorded token usage.
func enrichCosts(rows []*result.RowResult, pricingPath string) error {
	table, err := pricing.Load(pricingPath)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Model == "" {
			continue
		}
		r.CostUSD = table.Cost(r.Model, r.PromptTokens, r.CompletionTokens)
	}
	return nil
}

func writeTable(summaries []GraderSummary, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GRADER\tROWS\tFAILED\tPASS RATE\tMEAN SCORE\tMIN\tMAX\tMEAN TOKENS\tMEAN COST")
	fmt.Fprintln(tw, strings.Repeat("-", 96))
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\t%.3f\t%.3f\t%.3f\t%.0f\t$%.4f\n",
			s.Name, s.Rows, s.Failed, s.PassRate*100, s.MeanScore, s.MinScore, s.MaxScore, s.MeanTokens, s.MeanCostUSD)
	}
	return tw.Flush()
}

func writeMarkdown(summaries []GraderSummary, w io.Writer) error {
	fmt.Fprintln(w, "| Grader | Rows | Failed | Pass Rate | Mean Score | Min | Max | Mean Tokens | Mean Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, s := range summaries {
		fmt.Fprintf(w, "| %s | %d | %d | %.0f%% | %.3f | %.3f | %.3f | %.0f | $%.4f |\n",
			s.Name, s.Rows, s.Failed, s.PassRate*100, s.MeanScore, s.MinScore, s.MaxScore, s.MeanTokens, s.MeanCostUSD)
	}
	return nil
}

func writeJSON(summaries []GraderSummary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/rftgrader/internal/grader"
)

var flagSourceOnly bool

// converter turns the configured scorer into the spec every command sends.
var converter grader.Converter = grader.PythonConverter{}

func newSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Print the grader spec for the configured scorer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			spec, err := buildSpec(converter, cfg.Grader.Scorer)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if flagSourceOnly {
				_, err := fmt.Fprint(out, spec.Source)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(spec)
		},
	}
	cmd.Flags().BoolVar(&flagSourceOnly, "source", false, "print only the Python source")
	return cmd
}

func buildSpec(conv grader.Converter, scorerName string) (*grader.GraderSpec, error) {
	scorer, ok := grader.Lookup(scorerName)
	if !ok {
		return nil, fmt.Errorf("unknown scorer %q", scorerName)
	}
	return conv.Convert(scorer)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/rftgrader/internal/grader"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scorers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Scorers:")
			for _, name := range grader.Names() {
				s, _ := grader.Lookup(name)
				marker := " "
				if name == cfg.Grader.Scorer {
					marker = "*"
				}
				python := "no python source"
				if sp, ok := s.(grader.SourceProvider); ok {
					python = "python: " + sp.PythonFunc().Name
				}
				fmt.Fprintf(out, "%s %s (%s)\n", marker, name, python)
			}
			return nil
		},
	}
}

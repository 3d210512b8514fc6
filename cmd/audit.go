package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit <chemical-a> <chemical-b>",
	Short: "Show the full decision history for a chemical pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		log, err := st.DecisionsFor(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if len(log) == 0 {
			fmt.Printf("no decisions recorded for %s\n", model.NewPairKey(args[0], args[1]))
			return nil
		}

		for i, d := range log {
			marker := " "
			if i == len(log)-1 {
				marker = "*" // current decision
			}
			fmt.Printf("%s %s  %-13s conf=%.2f  %s\n",
				marker, d.DecidedAt.Format("2006-01-02 15:04:05"), d.Decision, d.Confidence, d.Justification)
			if d.Elevated {
				fmt.Printf("    %s\n", d.ElevationReason)
			}
			if len(d.ContributingRuleIDs) > 0 {
				fmt.Printf("    rules: %s\n", strings.Join(d.ContributingRuleIDs, ", "))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

func newFeedbackCmd() *cobra.Command {
	var (
		decision string
		reason   string
		learn    bool
		typeHint string
	)

	cmd := &cobra.Command{
		Use:   "feedback <transaction-id>",
		Short: "Record a human reviewer's decision on a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				applied, err := d.FeedbackHandler.Handle(cmd.Context(), entities.HumanDecision{
					TransactionID: args[0],
					Decision:      entities.Decision(decision),
					Reasoning:     reason,
					LearnRule:     learn,
					RuleTypeHint:  entities.RuleType(typeHint),
				})
				if err != nil {
					return err
				}
				if !applied {
					fmt.Println("Transaction not found or already reviewed.")
					return nil
				}
				fmt.Println("Human decision recorded.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&decision, "decision", "d", "", "approved or rejected (required)")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Free-text reasoning")
	cmd.Flags().BoolVar(&learn, "learn", false, "Distill an exception rule from this correction")
	cmd.Flags().StringVar(&typeHint, "type", "", "Rule type hint for learning")
	_ = cmd.MarkFlagRequired("decision")

	return cmd
}

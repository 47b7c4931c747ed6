package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Browse and administer learned exception rules",
	}

	cmd.AddCommand(
		newRulesListCmd(),
		newRulesAddCmd(),
		newRulesDeleteCmd(),
		newRulesRestoreCmd(),
		newRulesStatsCmd(),
	)

	return cmd
}

func newRulesListCmd() *cobra.Command {
	var (
		vendor         string
		category       string
		ruleType       string
		minSuccessRate float64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active exception rules, most-proven first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				rules, err := d.RuleHandler.List(cmd.Context(), entities.RuleFilter{
					Vendor:         vendor,
					Category:       category,
					RuleType:       entities.RuleType(ruleType),
					MinSuccessRate: minSuccessRate,
				})
				if err != nil {
					return err
				}

				if len(rules) == 0 {
					fmt.Println("No rules found.")
					return nil
				}

				fmt.Printf("Showing %d rules:\n\n", len(rules))
				for _, rule := range rules {
					displayRule(rule)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&vendor, "vendor", "", "Filter by vendor")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVarP(&ruleType, "type", "t", "", "Filter by rule type")
	cmd.Flags().Float64Var(&minSuccessRate, "min-success-rate", 0, "Minimum success rate (0-1)")

	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var (
		ruleType      string
		description   string
		vendor        string
		category      string
		currency      string
		international bool
		conditionJSON string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Teach a new exception rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			var condition map[string]any
			if conditionJSON != "" {
				if err := json.Unmarshal([]byte(conditionJSON), &condition); err != nil {
					return fmt.Errorf("parsing condition JSON: %w", err)
				}
			}

			scope := entities.RuleScope{
				Vendor:   vendor,
				Category: category,
				Currency: currency,
			}
			if cmd.Flags().Changed("international") {
				scope.International = &international
			}

			return withDeps(func(d *Deps) error {
				id, err := d.RuleHandler.Add(cmd.Context(), entities.RuleType(ruleType), description, scope, condition)
				if err != nil {
					return err
				}
				fmt.Printf("Created rule %s\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&ruleType, "type", "t", string(entities.RuleTypeManualOverride), "Rule type")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Human description (synthesized when blank)")
	cmd.Flags().StringVar(&vendor, "vendor", "", "Scope: vendor name")
	cmd.Flags().StringVar(&category, "category", "", "Scope: expense category")
	cmd.Flags().StringVar(&currency, "currency", "", "Scope: currency code")
	cmd.Flags().BoolVar(&international, "international", false, "Scope: international flag")
	cmd.Flags().StringVarP(&conditionJSON, "condition", "c", "", `Condition payload as JSON, e.g. '{"amount_threshold":1200,"auto_decision":"approved"}'`)

	return cmd
}

func newRulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Soft-delete a rule (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				deleted, err := d.RuleHandler.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Println("Rule not found or already deleted.")
					return nil
				}
				fmt.Println("Rule deleted.")
				return nil
			})
		},
	}
}

func newRulesRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <rule-id>",
		Short: "Restore a soft-deleted rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				restored, err := d.RuleHandler.Restore(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !restored {
					fmt.Println("Rule not found or already active.")
					return nil
				}
				fmt.Println("Rule restored.")
				return nil
			})
		},
	}
}

func newRulesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the learned rule base",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				stats, err := d.RuleHandler.Stats(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Printf("Total rules:        %d\n", stats.TotalRules)
				fmt.Printf("Active (applied):   %d\n", stats.ActiveRules)
				fmt.Printf("Total applications: %d\n", stats.TotalApplications)
				fmt.Printf("Avg success rate:   %.1f%%\n", stats.AvgSuccessRate*100)

				if len(stats.TopByUsage) > 0 {
					fmt.Println("\nTop rules by usage:")
					for _, rule := range stats.TopByUsage {
						fmt.Printf("  %s (%d applications, %.0f%% success)\n",
							rule.Description, rule.AppliedCount, rule.SuccessRate*100)
					}
				}
				if len(stats.MostRecent) > 0 {
					fmt.Println("\nMost recent rules:")
					for _, rule := range stats.MostRecent {
						fmt.Printf("  %s (created %s)\n",
							rule.Description, rule.CreatedAt.Format("2006-01-02"))
					}
				}
				return nil
			})
		},
	}
}

func displayRule(rule entities.ExceptionRule) {
	fmt.Printf("ID: %s\n", rule.ID)
	fmt.Printf("  [%s] %s\n", rule.RuleType, rule.Description)
	if rule.Vendor != "" {
		fmt.Printf("  Vendor: %s\n", rule.Vendor)
	}
	if rule.Category != "" {
		fmt.Printf("  Category: %s\n", rule.Category)
	}
	if rule.Condition.AutoDecision != "" {
		fmt.Printf("  Auto decision: %s\n", rule.Condition.AutoDecision)
	}
	fmt.Printf("  Applied %d times, %.0f%% success\n", rule.AppliedCount, rule.SuccessRate*100)
	fmt.Println()
}

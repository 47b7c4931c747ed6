package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complypilot/comply-core/internal/application/handlers"
	"github.com/complypilot/comply-core/internal/domain/entities"
)

// DefaultTransactionLimit caps transaction listings.
const DefaultTransactionLimit = 50

func newTransactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "Browse recorded transaction outcomes",
	}

	cmd.AddCommand(newTransactionsListCmd(), newTransactionsEvaluateCmd())
	return cmd
}

func newTransactionsListCmd() *cobra.Command {
	var (
		date  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storeAccess) error {
				txs, err := store.ListTransactions(cmd.Context(), date, limit)
				if err != nil {
					return err
				}

				if len(txs) == 0 {
					fmt.Println("No transactions found.")
					return nil
				}

				for _, tx := range txs {
					displayTransaction(tx)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Filter by creation date (YYYY-MM-DD)")
	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultTransactionLimit, "Maximum number of transactions")
	return cmd
}

// newTransactionsEvaluateCmd runs one ad-hoc automation pass. It exists for
// operators to sanity-check what the engine would do with a given invoice.
func newTransactionsEvaluateCmd() *cobra.Command {
	var (
		vendor        string
		category      string
		currency      string
		amount        float64
		international bool
		riskLevel     string
		confidence    float64
		compliant     bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate <invoice-ref>",
		Short: "Run the decision engine against an invoice and record the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(d *Deps) error {
				input := handlers.ProcessInput{
					Invoice: entities.Invoice{
						Ref:           args[0],
						Vendor:        vendor,
						Category:      category,
						Currency:      currency,
						Amount:        amount,
						International: international,
					},
					CurrentDecision: entities.DecisionNeedsReview,
					Verdict: &entities.ComplianceVerdict{
						Compliant:  compliant,
						Confidence: confidence,
					},
					Risk: entities.RiskAssessment{Level: entities.RiskLevel(riskLevel)},
					Trails: []entities.Trail{{
						Origin:   "CLI",
						Messages: []string{fmt.Sprintf("Manual evaluation of invoice %s", args[0])},
					}},
				}

				result, err := d.DecisionHandler.Process(cmd.Context(), input)
				if err != nil {
					return err
				}

				outcome := result.Outcome
				if outcome.ShouldOverride {
					fmt.Printf("Automated: %s (source %s, confidence %.2f)\n", outcome.Decision, outcome.Source, outcome.Confidence)
				} else {
					fmt.Printf("Left for human review (%s)\n", outcome.Source)
				}
				fmt.Printf("Reason: %s\n", outcome.Reason)
				fmt.Printf("Recorded transaction %s\n", result.Transaction.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&vendor, "vendor", "", "Invoice vendor")
	cmd.Flags().StringVar(&category, "category", "", "Expense category")
	cmd.Flags().StringVar(&currency, "currency", "USD", "Currency code")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Invoice amount")
	cmd.Flags().BoolVar(&international, "international", false, "International transaction")
	cmd.Flags().StringVar(&riskLevel, "risk", string(entities.RiskMedium), "Risk level (low|medium|high|critical)")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "Compliance confidence (0-1)")
	cmd.Flags().BoolVar(&compliant, "compliant", true, "Compliance verdict")
	return cmd
}

func displayTransaction(tx entities.TransactionRecord) {
	fmt.Printf("ID: %s (invoice %s)\n", tx.ID, tx.InvoiceRef)
	fmt.Printf("  %s  %s %.2f  risk=%s  decision=%s\n",
		tx.CreatedAt.Format("2006-01-02 15:04"),
		tx.Invoice.Currency, tx.Invoice.Amount, tx.RiskLevel, tx.FinalDecision)
	if tx.HumanOverride {
		fmt.Println("  Overridden by human reviewer")
	}
	if tx.DecisionRationale != "" {
		fmt.Printf("  Rationale: %s\n", tx.DecisionRationale)
	}
	fmt.Println()
}

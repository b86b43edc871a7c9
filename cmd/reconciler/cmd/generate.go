package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/scenario"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic statement and ledger export",
	Long: `Generate writes a bank statement in the generic-semicolon format and a
ledger export with a known outcome: matched pairs, bank-only transactions,
ledger-only entries and repeated statement rows. Reconciling the pair with a
date tolerance of at least --max-date-shift reproduces the printed counts.

Examples:
  reconciler generate --output-dir ./scenarios
  reconciler generate --matched 5000 --bank-only 20 --seed 7 --prefix large`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	def := scenario.DefaultGenerator()
	f := generateCmd.Flags()
	f.String("output-dir", ".", "directory the files are written to")
	f.String("prefix", "scenario", "file name prefix")
	f.Uint64("seed", def.Seed, "random seed")
	f.String("account", def.Account, "ledger account of the entries")
	f.String("currency", def.Currency, "currency of the entries")
	f.String("start-date", def.StartDate.Format("2006-01-02"), "first day of the statement period")
	f.Int("days", def.Days, "length of the statement period")
	f.Int("matched", def.Matched, "transactions with a ledger entry")
	f.Int("max-date-shift", def.MaxDateShift, "maximum days between a transaction and its entry")
	f.Int("bank-only", def.BankOnly, "transactions without a ledger entry")
	f.Int("ledger-only", def.LedgerOnly, "ledger entries without a transaction")
	f.Int("duplicates", def.Duplicates, "matched transactions repeated on the statement")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	_, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	start, err := locale.ParseDate(v.GetString("start-date"))
	if err != nil {
		return errors.ValidationError(errors.CodeInvalidDate, "start-date", v.GetString("start-date"), err).
			WithSuggestion("Use YYYY-MM-DD")
	}

	g := scenario.Generator{
		Seed:         v.GetUint64("seed"),
		Account:      v.GetString("account"),
		Currency:     v.GetString("currency"),
		StartDate:    start,
		Days:         v.GetInt("days"),
		Matched:      v.GetInt("matched"),
		MaxDateShift: v.GetInt("max-date-shift"),
		BankOnly:     v.GetInt("bank-only"),
		LedgerOnly:   v.GetInt("ledger-only"),
		Duplicates:   v.GetInt("duplicates"),
	}

	op := logger.NewOperationLogger("generate_scenario", log).WithFields(logger.Fields{"seed": g.Seed})
	s, err := g.Generate()
	if err != nil {
		op.Error(err, "Scenario generation failed")
		return err
	}
	op.Step("generated", logger.Fields{"transactions": s.Expected.Transactions})

	statementPath, ledgerPath, err := s.WriteFiles(appFs, v.GetString("output-dir"), v.GetString("prefix"))
	if err != nil {
		op.Error(err, "Writing scenario failed")
		return err
	}
	op.WithFields(logger.Fields{"statement": statementPath, "ledger": ledgerPath}).Success("Scenario written")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Statement: %s\n", statementPath)
	fmt.Fprintf(out, "Ledger:    %s\n", ledgerPath)
	fmt.Fprintf(out, "Expected:  %d transactions, %d matched, %d bank only, %d ledger only, %d duplicate(s)\n",
		s.Expected.Transactions, s.Expected.Matched, s.Expected.BankOnly, s.Expected.LedgerOnly, s.Expected.DuplicateExtras)
	fmt.Fprintf(out, "Reconcile: reconciler reconcile -s %s -l %s -a %s -d %d\n",
		statementPath, ledgerPath, g.Account, max(g.MaxDateShift, 3))
	return nil
}

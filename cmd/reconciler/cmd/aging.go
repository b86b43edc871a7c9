package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/aging"
	"statement-reconciler/internal/models"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// agingCmd represents the aging command
var agingCmd = &cobra.Command{
	Use:   "aging",
	Short: "Age the open entries of a ledger export",
	Long: `Aging places every open ledger entry in a bucket by the days elapsed from
its due date (or entry date) to the as-of date, and lists the counterparties
with the largest open balances.

Examples:
  reconciler aging --ledger ledger.csv --as-of 2024-06-30
  reconciler aging --ledger ledger.csv --account 1100 --aging-buckets "0-15,16-30,31+"`,
	RunE: runAging,
}

func init() {
	rootCmd.AddCommand(agingCmd)

	f := agingCmd.Flags()
	f.StringP("ledger", "l", "", "ledger export CSV (required)")
	f.String("ledger-delimiter", ",", "field delimiter of the ledger export")
	f.StringP("account", "a", "", "only age entries of this account")
	f.String("currency", "", "currency entries are converted to (with rates from the config file)")
	f.String("as-of", "", "aging date, YYYY-MM-DD (default: today)")
	f.String("aging-buckets", "", `aging buckets, e.g. "0-30,31-60,61-90,91-180,181+"`)
	f.Int("top", 10, "counterparties listed by open balance (0: all)")
	addOutputFlags(agingCmd)

	_ = agingCmd.MarkFlagRequired("ledger")
}

func runAging(cmd *cobra.Command, args []string) error {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := validateFileExists(appFs, settings.Ledger, "ledger export"); err != nil {
		return err
	}
	if err := validateOutputSettings(appFs, settings); err != nil {
		return err
	}

	asOf, err := settings.AsOfDate()
	if err != nil {
		return err
	}
	if asOf.IsZero() {
		asOf = models.Day(time.Now())
	}
	buckets := aging.DefaultBuckets()
	if settings.AgingBuckets != "" {
		if buckets, err = aging.ParseBuckets(settings.AgingBuckets); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "aging-buckets", settings.AgingBuckets, err)
		}
	}

	source, err := settings.LedgerSource(appFs, log)
	if err != nil {
		return err
	}
	op := logger.NewOperationLogger("aging", log).WithFields(logger.Fields{
		"ledger":  settings.Ledger,
		"account": settings.Account,
		"as_of":   asOf.Format(models.DateLayout),
	})
	entries, err := source.FetchOpenEntries(cmd.Context(), settings.Account, asOf)
	if err != nil {
		op.Error(err, "Fetching open entries failed")
		return err
	}
	op.Step("fetched", logger.Fields{"entries": len(entries)})

	res, err := aging.Classify(entries, asOf, buckets)
	if err != nil {
		op.Error(err, "Aging failed")
		return err
	}
	if res.Settled > 0 {
		op.Warning("Settled entries skipped", logger.Fields{"settled": res.Settled})
	}
	op.Success("Aging completed")

	reportConfig, err := config.CreateReportConfig(settings.OutputFormat)
	if err != nil {
		return err
	}
	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}
	out, closeOut, err := openOutput(cmd, settings.OutputFile)
	if err != nil {
		return err
	}
	defer closeOut()

	return generator.GenerateAgingReport(res, v.GetInt("top"), out)
}

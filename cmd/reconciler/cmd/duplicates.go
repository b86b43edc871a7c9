package cmd

import (
	"github.com/spf13/cobra"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/internal/dedup"
	"statement-reconciler/internal/parsers"
	"statement-reconciler/internal/reporter"
	"statement-reconciler/pkg/logger"
)

// duplicatesCmd represents the duplicates command
var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List suspected duplicate transactions of a statement",
	Long: `Duplicates parses a statement and groups transactions sharing a signature.
Nothing is removed: every group suggests keeping its first transaction and
lists the others for review.

Strategies:
  exact    date, amount, counterparty, reference and description
  default  date, amount and counterparty
  loose    date and amount

Examples:
  reconciler duplicates --statement june.csv --format ch-bank
  reconciler duplicates --statement june.csv --strategy loose --output-format json`,
	RunE: runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)

	duplicatesCmd.Flags().StringSliceP("statement", "s", nil, "bank statement file(s) (required)")
	duplicatesCmd.Flags().StringSlice("strategy", []string{dedup.Exact.Name, dedup.Loose.Name}, "strategies to run, in order")
	addFormatFlags(duplicatesCmd)
	addOutputFlags(duplicatesCmd)

	_ = duplicatesCmd.MarkFlagRequired("statement")
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	for _, path := range settings.Statements {
		if err := validateFileExists(appFs, path, "statement"); err != nil {
			return err
		}
	}
	if err := validateOutputSettings(appFs, settings); err != nil {
		return err
	}

	reg, err := settings.Registry(appFs)
	if err != nil {
		return err
	}
	spec, err := settings.FormatSpec(reg)
	if err != nil {
		return err
	}
	parser, err := parsers.NewStatementParser(spec, log)
	if err != nil {
		return err
	}
	detector, err := dedup.New(dedup.Config{Strategies: v.GetStringSlice("strategy")}, log)
	if err != nil {
		return err
	}

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

	for _, path := range settings.Statements {
		stmt, stats, err := parser.ParseFile(appFs, path)
		if err != nil {
			return err
		}
		if settings.Verbose {
			printParseErrors(cmd.ErrOrStderr(), path, stats)
		}
		groups := detector.Detect(stmt.Transactions)
		log.WithFields(logger.Fields{
			"statement": path,
			"groups":    len(groups),
		}).Debug("Duplicate detection completed")

		if err := generator.GenerateDuplicateReport(path, groups, out); err != nil {
			return err
		}
	}
	return nil
}

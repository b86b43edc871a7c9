package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"statement-reconciler/internal/parsers"
)

// formatsCmd represents the formats command
var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the statement format profiles",
	Long: `Formats lists the built-in statement format profiles and those loaded
with --profiles. With --export the listed profiles are written to a YAML file
that can be edited and loaded back with --profiles.

Examples:
  reconciler formats
  reconciler formats --profiles banks.yaml
  reconciler formats --export profiles.yaml`,
	RunE: runFormats,
}

func init() {
	rootCmd.AddCommand(formatsCmd)

	formatsCmd.Flags().String("profiles", "", "YAML file with additional format profiles")
	formatsCmd.Flags().String("export", "", "write the profiles to this YAML file")
}

func runFormats(cmd *cobra.Command, args []string) error {
	settings, log, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	reg, err := settings.Registry(appFs)
	if err != nil {
		return err
	}

	if path := v.GetString("export"); path != "" {
		if err := parsers.SaveProfiles(appFs, path, reg.List()); err != nil {
			return err
		}
		log.WithField("file", path).Info("Profiles exported")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLOCALE\tDELIMITER\tENCODING\tAMOUNT\tSOURCE")
	for _, spec := range reg.List() {
		fmt.Fprintf(w, "%s\t%s\t%q\t%s\t%s\t%s\n",
			spec.Name, spec.Locale, spec.DelimiterRune(), valueOr(string(spec.Encoding), "auto"),
			amountColumns(spec), reg.Source(spec.Name))
	}
	return w.Flush()
}

func amountColumns(spec parsers.FormatSpec) string {
	if spec.HasDebitCredit() {
		return spec.DebitColumn + " / " + spec.CreditColumn
	}
	return spec.AmountColumn
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

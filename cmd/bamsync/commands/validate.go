package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/internal/cli/output"
	"github.com/netgrove/bamsync/pkg/parser"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Parse and validate a CSV file without touching the server",
	Long: `Parse the CSV file and run every schema check: envelope columns,
per-kind required fields, value formats, and action validity. No network
connection is made.

Examples:
  bamsync validate changes.csv
  bamsync validate --strict changes.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "fail on any validation error instead of dropping bad rows")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer func() { _ = f.Close() }()

	result, err := parser.Parse(f, parser.Options{Strict: validateStrict})
	if err != nil && !errors.Is(err, parser.ErrStrictValidation) {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if len(result.Errors) > 0 {
		table := output.NewTableData("ROW", "FIELD", "PROBLEM")
		for _, ve := range result.Errors {
			table.AddRow(ve.RowID, ve.Field, ve.Message)
		}
		if err := output.PrintTable(os.Stdout, table); err != nil {
			return err
		}
		return partialf("%d of %d rows failed validation", len(result.Errors), len(result.Rows)+len(result.Errors))
	}

	fmt.Printf("%d rows validated, no problems found\n", len(result.Rows))
	return nil
}

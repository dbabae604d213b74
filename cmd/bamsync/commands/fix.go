package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/netgrove/bamsync/pkg/parser"
)

var fixCmd = &cobra.Command{
	Use:   "fix <file>...",
	Short: "Normalize whitespace in CSV files in place",
	Long: `Rewrite the files with normalized cell whitespace: a UTF-8 BOM is
stripped, cells are trimmed, and line endings become LF. Comments and
cell contents are otherwise preserved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := parser.SanitizeFile(path); err != nil {
				return err
			}
			fmt.Printf("fixed %s\n", path)
		}
		return nil
	},
}

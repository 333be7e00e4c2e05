// Package cmd provides the CLI commands for the webdsl runtime.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	// outputFormat specifies the output format for commands that support it (json|plain).
	outputFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "webdsl",
	Short: "webdsl runs and validates declarative web application configurations",
	Long: `webdsl interprets a site configuration file that declares routes,
templated pages, form/JSON validation, SQL-backed queries, and pipelines
built from transform, script, and SQL steps, then serves it over HTTP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called by main.main(); it only needs to happen
// once.
func Execute() error {
	_ = godotenv.Load()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "plain", "output format (json|plain)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}

// findSiteFile resolves the site configuration path: an explicit arg wins,
// then "site.webdsl" in the current directory, then the first *.webdsl
// glob match.
func findSiteFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("site.webdsl"); err == nil {
		return "site.webdsl"
	}
	matches, err := filepath.Glob("*.webdsl")
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

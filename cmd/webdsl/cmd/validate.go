package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/williamcotton/webdsl/internal/site"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [site-file]",
		Short: "Parse a site configuration and build its route index without serving it",
		Long: `validate parses a site configuration (and its includes), builds the
route index, and reports the first error encountered, without connecting
to a database or starting a listener. Exits nonzero on any parse or
include error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runValidate,
	}
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	explicit := ""
	if len(args) == 1 {
		explicit = args[0]
	}
	sitePath := findSiteFile(explicit)
	if sitePath == "" {
		return fmt.Errorf("no site file found: pass a path, create site.webdsl, or add a *.webdsl file")
	}

	printVerbose(cmd, "Parsing %s\n", sitePath)

	rt, err := site.Load(sitePath, site.Options{SkipDatabase: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d page(s), %d api(s), %d quer(y/ies)\n",
		sitePath, len(rt.Site.Pages), len(rt.Site.APIs), len(rt.Site.Queries))
	return nil
}

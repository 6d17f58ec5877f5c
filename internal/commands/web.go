package commands

import (
	"fmt"
	"strings"

	"github.com/smallnest/paperrag/rag/engine"
	"github.com/spf13/cobra"
)

func (c *cli) searchWebCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search-web <query>",
		Short: "Search the web with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if a.Web == nil {
				return fmt.Errorf("web search is not configured: set WEB_SEARCH_PROVIDER and its API key")
			}

			resp, err := a.Web.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), engine.FormatWebResults(resp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the results as JSON")
	return cmd
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the vector index and the paper library",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			papers, err := a.Library.All(cmd.Context())
			if err != nil {
				return err
			}
			st := a.Vectors.Stats()

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{
					"index":  st,
					"papers": len(papers),
					"llm":    a.LLM != nil,
					"web":    a.Web != nil,
				})
			}

			fmt.Fprintln(out, titleStyle.Render("Vector index"))
			if !st.Initialized {
				fmt.Fprintf(out, "  %s\n", warnStyle.Render("empty: run paperrag ingest"))
			} else {
				fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("path:"), c.cfg.VectorIndexPath)
				fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("type:"), st.IndexType)
				fmt.Fprintf(out, "  %s %s (dim %d)\n", labelStyle.Render("model:"), st.ModelName, st.Dimension)
				fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("chunks:"), st.Count)
			}
			fmt.Fprintln(out, titleStyle.Render("Library"))
			fmt.Fprintf(out, "  %s %d (%s)\n", labelStyle.Render("papers:"), len(papers), c.cfg.MetadataBackend)
			fmt.Fprintf(out, "  %s %v\n", labelStyle.Render("question answering:"), a.LLM != nil)
			fmt.Fprintf(out, "  %s %v\n", labelStyle.Render("web search:"), a.Web != nil)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/rag/engine"
	"github.com/spf13/cobra"
)

func (c *cli) queryCmd() *cobra.Command {
	var (
		mode    string
		k       int
		year    int
		venue   string
		stream  bool
		asJSON  bool
		showCtx bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the indexed papers, the web, or both",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			m, err := engine.ParseMode(mode)
			if err != nil {
				return err
			}
			if stream && (m != engine.ModeDocuments || asJSON) {
				return fmt.Errorf("--stream only works in documents mode without --json")
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.RequireLLM(); err != nil {
				return err
			}

			var opts []engine.QueryOption
			if k > 0 {
				opts = append(opts, engine.WithK(k))
			}
			filter := map[string]any{}
			if year > 0 {
				filter[rag.MetaYear] = year
			}
			if venue != "" {
				filter[rag.MetaVenue] = venue
			}
			if len(filter) > 0 {
				opts = append(opts, engine.WithFilter(filter))
			}

			out := cmd.OutOrStdout()
			if stream {
				for fragment, err := range a.Orchestrator.QueryStream(cmd.Context(), question, opts...) {
					if err != nil {
						return err
					}
					fmt.Fprint(out, fragment)
				}
				fmt.Fprintln(out)
				return nil
			}

			res, err := a.Orchestrator.Answer(cmd.Context(), question, m, opts...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, res)
			}
			printAnswer(out, res, showCtx)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(engine.ModeDocuments), "documents, web or hybrid")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of chunks to retrieve (default TOP_K_RESULTS)")
	cmd.Flags().IntVar(&year, "year", 0, "only use chunks from papers published in this year")
	cmd.Flags().StringVar(&venue, "venue", "", "only use chunks from papers published at this venue")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&showCtx, "show-context", false, "print the context sent to the model")
	return cmd
}

func printAnswer(w io.Writer, res *engine.QueryResult, showCtx bool) {
	fmt.Fprintln(w, titleStyle.Render("Answer"))
	fmt.Fprintln(w, res.Answer)
	if len(res.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Sources"))
		for _, s := range res.Sources {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if len(res.Sections) > 0 {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Sections:"), strings.Join(res.Sections, ", "))
	}
	if showCtx {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Context"))
		fmt.Fprintln(w, res.Context)
	}
}

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/smallnest/paperrag/library"
	"github.com/smallnest/paperrag/rag"
	"github.com/spf13/cobra"
)

// filterFlags are the listing filters shared by papers, trends and report.
type filterFlags struct {
	from    int
	to      int
	keyword string
	venues  []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.from, "from", 0, "earliest publication year")
	cmd.Flags().IntVar(&f.to, "to", 0, "latest publication year")
	cmd.Flags().StringVar(&f.keyword, "keyword", "", "match title, summary or keywords")
	cmd.Flags().StringSliceVar(&f.venues, "venue", nil, "restrict to these venues")
}

func (f *filterFlags) options() library.FilterOptions {
	opts := library.FilterOptions{Keyword: f.keyword, Venues: f.venues}
	if f.from > 0 {
		opts.YearFrom = rag.IntPtr(f.from)
	}
	if f.to > 0 {
		opts.YearTo = rag.IntPtr(f.to)
	}
	return opts
}

func (c *cli) papersCmd() *cobra.Command {
	var (
		filters filterFlags
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "papers",
		Short: "List ingested papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			papers, err := a.Library.Find(cmd.Context(), filters.options())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, papers)
			}
			if len(papers) == 0 {
				fmt.Fprintln(out, warnStyle.Render("No papers found."))
				return nil
			}
			for _, p := range papers {
				fmt.Fprintln(out, titleStyle.Render(p.Title))
				var details []string
				if len(p.Authors) > 0 {
					details = append(details, strings.Join(p.Authors, ", "))
				}
				if p.Year != nil {
					details = append(details, fmt.Sprint(*p.Year))
				}
				if p.Venue != nil {
					details = append(details, *p.Venue)
				}
				fmt.Fprintf(out, "  %s\n", strings.Join(details, " · "))
				if len(p.Keywords) > 0 {
					fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("keywords:"), strings.Join(p.Keywords, ", "))
				}
				fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("id:"), p.PaperID)
			}
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the papers as JSON")
	return cmd
}

func (c *cli) trendsCmd() *cobra.Command {
	var (
		filters filterFlags
		recent  int
		top     int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Show keyword trends, emerging topics and influential papers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			papers, err := a.Library.Find(cmd.Context(), filters.options())
			if err != nil {
				return err
			}

			trends := library.KeywordTrends(papers)
			emerging := library.EmergingTopics(trends, recent)
			ranked := library.RankInfluence(papers)
			if top > 0 {
				emerging = emerging[:min(top, len(emerging))]
				ranked = ranked[:min(top, len(ranked))]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{
					"trends":      trends,
					"emerging":    emerging,
					"influential": ranked,
				})
			}

			fmt.Fprintln(out, titleStyle.Render("Keyword trends"))
			for _, t := range trends {
				fmt.Fprintf(out, "  %d  %-30s %d\n", t.Year, t.Keyword, t.Count)
			}
			fmt.Fprintln(out, titleStyle.Render("Emerging topics"))
			if len(emerging) == 0 {
				fmt.Fprintln(out, warnStyle.Render("  No emerging topics detected for the selected range."))
			}
			for _, t := range emerging {
				fmt.Fprintf(out, "  %s (growth score: %d)\n", t.Keyword, t.Growth)
			}
			fmt.Fprintln(out, titleStyle.Render("Influential papers"))
			for _, r := range ranked {
				fmt.Fprintf(out, "  %3d  %s\n", r.Score, r.Paper.Title)
			}
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVar(&recent, "recent", 2, "number of recent years used for growth")
	cmd.Flags().IntVar(&top, "top", 5, "number of topics and papers to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the trends as JSON")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var (
		filters  filterFlags
		title    string
		question string
		output   string
		format   string
		recent   int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a Markdown or HTML report on the library, optionally answering a question",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "md" && format != "html" {
				return fmt.Errorf("%w: unknown report format %q", rag.ErrInvalidConfig, format)
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			papers, err := a.Library.Find(cmd.Context(), filters.options())
			if err != nil {
				return err
			}

			report := library.BuildReport(title, papers, recent)
			if question != "" {
				if err := a.RequireLLM(); err != nil {
					return err
				}
				res, err := a.Orchestrator.Query(cmd.Context(), question)
				if err != nil {
					return err
				}
				report.Question = question
				report.Answer = res.Answer
				report.Sources = res.Sources
			}

			var body []byte
			if format == "html" {
				body = report.HTML()
			} else {
				body = []byte(report.Markdown())
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0644); err != nil {
				return fmt.Errorf("%w: %w", rag.ErrStorageIO, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("Wrote"), output)
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&title, "title", "Research Report", "report title")
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to answer from the indexed papers")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "md", "md or html")
	cmd.Flags().IntVar(&recent, "recent", 2, "number of recent years used for emerging topics")
	return cmd
}

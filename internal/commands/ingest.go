package commands

import (
	"fmt"

	"github.com/smallnest/paperrag/rag/ingest"
	"github.com/spf13/cobra"
)

func (c *cli) ingestCmd() *cobra.Command {
	var (
		dir          string
		chunkSize    int
		chunkOverlap int
		exts         []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Index papers (.pdf, .docx, .txt) and extract their metadata",
		Long: `Loads each paper, splits it into sections and chunks, asks the LLM for
its bibliographic metadata, and adds the chunks to the vector index. Files
that fail are reported and skipped; the rest are indexed and the index is
saved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" && len(args) == 0 {
				return fmt.Errorf("give files to ingest or --dir")
			}
			if cmd.Flags().Changed("chunk-size") {
				c.cfg.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				c.cfg.ChunkOverlap = chunkOverlap
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}

			var batch *ingest.BatchResult
			if dir != "" {
				batch, err = a.Pipeline.IngestDir(cmd.Context(), dir, exts...)
			} else {
				batch, err = a.Pipeline.IngestPaths(cmd.Context(), args)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range batch.Results {
				title := r.Source
				if r.Metadata != nil && r.Metadata.Title != "" {
					title = r.Metadata.Title
				}
				fmt.Fprintf(out, "%s %s %s\n", successStyle.Render("✓"), title, labelStyle.Render(fmt.Sprintf("(%d sections, %d chunks)", len(r.Sections), len(r.Chunks))))
			}
			for _, f := range batch.Failures {
				fmt.Fprintf(out, "%s %s\n", errorStyle.Render("✗"), f.Error())
			}

			if len(batch.Results) > 0 {
				if err := a.SaveIndex(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "%s %d files, %d chunks, %d failed\n", titleStyle.Render("Ingested"), len(batch.Results), batch.Chunks(), len(batch.Failures))

			if len(batch.Results) == 0 {
				return fmt.Errorf("no file was ingested")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "ingest every supported file in this directory")
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "restrict --dir to these extensions, e.g. .pdf")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "chunk size in characters (overrides CHUNK_SIZE)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "chunk overlap in characters (overrides CHUNK_OVERLAP)")
	return cmd
}

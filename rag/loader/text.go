package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

func loadText(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	return docs, nil
}

func loadPDF(ctx context.Context, path string) ([]schema.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	// One document per page, with "page" and "total_pages" metadata.
	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}
	return docs, nil
}

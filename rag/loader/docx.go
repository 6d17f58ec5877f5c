package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// documentXML is the subset of word/document.xml needed to recover text.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type coreXML struct {
	Title string `xml:"title"`
}

func loadDOCX(ctx context.Context, path string) ([]schema.Document, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx archive: %w", err)
	}
	defer reader.Close()

	var text, title string
	found := false
	for _, file := range reader.File {
		switch file.Name {
		case "word/document.xml":
			raw, err := readZipFile(file)
			if err != nil {
				return nil, err
			}
			text, err = parseDocumentXML(raw)
			if err != nil {
				return nil, err
			}
			found = true
		case "docProps/core.xml":
			raw, err := readZipFile(file)
			if err != nil {
				continue
			}
			var core coreXML
			if xml.Unmarshal(raw, &core) == nil {
				title = strings.TrimSpace(core.Title)
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("docx archive has no word/document.xml")
	}

	metadata := map[string]any{}
	if title != "" {
		metadata["document_title"] = title
	}
	return []schema.Document{{PageContent: text, Metadata: metadata}}, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	return raw, nil
}

// parseDocumentXML joins paragraph runs, one paragraph per line.
func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("failed to parse word/document.xml: %w", err)
	}

	var sb strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			sb.WriteString("\n")
		}
		for _, r := range para.Runs {
			for _, t := range r.Text {
				sb.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

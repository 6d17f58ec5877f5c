package extract

// paperSchema is the JSON schema the model's reply must satisfy. Unknown
// scalars are null rather than guessed.
var paperSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"paper_id": map[string]any{
			"type":        "string",
			"description": "DOI, arXiv id or other identifier printed on the paper; empty when none is printed",
		},
		"title": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"authors": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"year": map[string]any{
			"type":    []any{"integer", "null"},
			"minimum": 1000,
			"maximum": 9999,
		},
		"venue": map[string]any{
			"type": []any{"string", "null"},
		},
		"keywords": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"summary": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "a few sentences stating the paper's contribution",
		},
	},
	"required": []any{"title", "authors"},
}

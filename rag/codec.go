package rag

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// listKeys hold string lists; a JSON null under them decodes to a nil
// []string.
var listKeys = []string{MetaAuthors, MetaKeywords, MetaSummary}

// UnmarshalJSON decodes a chunk and restores the Go types its metadata had
// before encoding: integral numbers become int, other numbers float64, and
// arrays of strings []string. A float64 holding a whole number therefore
// comes back as int; filters treat the two as equal.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       string          `json:"id"`
		Text     string          `json:"text"`
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	metadata, err := DecodeMetadata(raw.Metadata)
	if err != nil {
		return err
	}
	*c = Chunk{ID: raw.ID, Text: raw.Text, Metadata: metadata}
	return nil
}

// DecodeMetadata decodes a JSON object into chunk metadata with the value
// types Chunk.UnmarshalJSON restores. Empty input and null decode to nil.
func DecodeMetadata(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var metadata map[string]any
	if err := dec.Decode(&metadata); err != nil {
		return nil, err
	}
	if metadata == nil {
		return nil, nil
	}

	for k, v := range metadata {
		metadata[k] = restoreValue(v)
	}
	for _, k := range listKeys {
		if v, ok := metadata[k]; ok && v == nil {
			metadata[k] = []string(nil)
		}
	}
	return metadata, nil
}

func restoreValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(x.String(), 10, strconv.IntSize); err == nil {
			return int(i)
		}
		f, _ := x.Float64()
		return f
	case []any:
		if strs, ok := stringList(x); ok {
			return strs
		}
		for i := range x {
			x[i] = restoreValue(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = restoreValue(x[k])
		}
		return x
	default:
		return v
	}
}

func stringList(values []any) ([]string, bool) {
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

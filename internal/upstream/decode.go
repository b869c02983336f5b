package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// listEnvelope covers the shapes list endpoints use: a bare array, or an
// object holding the array under items, data, results or products.
type listEnvelope[T any] struct {
	Items    []T `json:"items"`
	Data     []T `json:"data"`
	Results  []T `json:"results"`
	Products []T `json:"products"`
	Total    int `json:"total"`
	Count    int `json:"count"`
	Page     int `json:"page"`
	PerPage  int `json:"per_page"`
	Limit    int `json:"limit"`
}

// listMeta is the pagination metadata found next to a list, if any.
type listMeta struct {
	Total   int
	Page    int
	PerPage int
}

// decodeList decodes any supported list shape. Missing totals default to the
// number of items decoded.
func decodeList[T any](raw []byte) ([]T, listMeta, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, listMeta{}, nil
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, listMeta{}, err
		}
		return items, listMeta{Total: len(items)}, nil
	}

	var env listEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, listMeta{}, err
	}

	var items []T
	switch {
	case env.Items != nil:
		items = env.Items
	case env.Data != nil:
		items = env.Data
	case env.Results != nil:
		items = env.Results
	case env.Products != nil:
		items = env.Products
	default:
		return nil, listMeta{}, fmt.Errorf("no list field in response")
	}

	meta := listMeta{Total: env.Total, Page: env.Page, PerPage: env.PerPage}
	if meta.Total == 0 {
		meta.Total = env.Count
	}
	if meta.Total < len(items) {
		meta.Total = len(items)
	}
	if meta.PerPage == 0 {
		meta.PerPage = env.Limit
	}
	return items, meta, nil
}

// decodeObject decodes a single object that may be wrapped in {"data": ...}.
func decodeObject(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 && wrapped.Data[0] == '{' {
		raw = wrapped.Data
	}
	return json.Unmarshal(raw, out)
}

// decodeSuggestions accepts a list of strings or of objects carrying text,
// name, suggestion or query, under any supported list shape.
func decodeSuggestions(raw []byte) ([]string, error) {
	items, _, err := decodeList[json.RawMessage](raw)
	if err != nil {
		var env struct {
			Suggestions []json.RawMessage `json:"suggestions"`
		}
		if err2 := json.Unmarshal(raw, &env); err2 != nil || env.Suggestions == nil {
			return nil, err
		}
		items = env.Suggestions
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Text       string `json:"text"`
			Name       string `json:"name"`
			Suggestion string `json:"suggestion"`
			Query      string `json:"query"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		for _, v := range []string{obj.Text, obj.Suggestion, obj.Name, obj.Query} {
			if v != "" {
				out = append(out, v)
				break
			}
		}
	}
	return out, nil
}

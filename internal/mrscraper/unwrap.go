package mrscraper

import "encoding/json"

//
// ────────────────────────────────────────────────
//   Payload Unwrapper — envelope to product list
// ────────────────────────────────────────────────
//
// The extraction service's response envelope has no fixed schema. The shapes
// confirmed against the live API:
//
//	{"message": "...", "data": {"id": "...", "status": "Finished", "data": ...}}
//
// where the inner data can be a single product object, an array, a wrapper
// object like {"products": [...]}, or a JSON-encoded string. Older envelopes
// carry "data.results", the AI endpoint uses a top-level "result" array, and
// some responses are a bare array. Unwrap handles all of them; an unexpected
// shape yields an empty list plus a diagnostic, never an error.
//

// productIndicators are the fields whose presence marks an object as a
// product rather than envelope metadata. This is the single definition used
// by every looks-like-a-product check.
var productIndicators = []string{"product_name", "name", "title", "current_price", "price"}

// nameIndicators is the stricter subset used where a price alone is not
// enough to treat an object as a product.
var nameIndicators = []string{"product_name", "name", "title"}

// wrapperKeys are the object keys under which services nest product arrays.
var wrapperKeys = []string{"products", "items", "data", "listings", "results"}

// successStatuses are result statuses that do not disqualify a results entry.
var successStatuses = map[string]bool{"succeeded": true, "success": true, "unknown": true}

func hasAnyKey(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// Unwrap extracts a flat, ordered list of raw product objects from a
// decoded response envelope. The five resolution branches are tried in
// order; the first that applies wins. On the empty path the returned
// diagnostic names the reason.
func Unwrap(envelope any) ([]RawProduct, string) {
	if outer, ok := envelope.(map[string]any); ok {
		if data, ok := outer["data"].(map[string]any); ok {
			// Primary path: product data nested under data.data.
			if inner, present := data["data"]; present && inner != nil {
				return unwrapInner(inner)
			}

			// Older envelope: data.results[] entries.
			if results, ok := data["results"].([]any); ok && len(results) > 0 {
				return extractFromResults(results), ""
			}
		}

		// AI endpoint format: top-level result array.
		if result, ok := outer["result"].([]any); ok {
			return onlyObjects(result), ""
		}

		return nil, "unexpected envelope shape"
	}

	// Bare top-level array.
	if list, ok := envelope.([]any); ok {
		return onlyObjects(list), ""
	}

	return nil, "envelope is neither object nor array"
}

// unwrapInner resolves the data.data value into a product list.
func unwrapInner(inner any) ([]RawProduct, string) {
	// JSON string → parse first.
	if s, ok := inner.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, "inner data is not valid JSON"
		}
		inner = decoded
	}

	switch v := inner.(type) {
	case []any:
		return onlyObjects(v), ""

	case map[string]any:
		// Wrapper object like {"products": [...]}.
		for _, key := range wrapperKeys {
			if nested, ok := v[key].([]any); ok {
				return onlyObjects(nested), ""
			}
		}

		// Single product object — but only if it actually looks like one.
		if hasAnyKey(v, productIndicators) {
			return []RawProduct{v}, ""
		}
		return nil, "inner object has no product indicator fields"
	}

	return nil, "inner data has an unsupported type"
}

// extractFromResults flattens products out of a data.results array. Entries
// whose status marks a failure are skipped without failing the batch.
func extractFromResults(results []any) []RawProduct {
	var all []RawProduct

	for _, entry := range results {
		result, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		status := "unknown"
		if s, ok := result["status"].(string); ok && s != "" {
			status = s
		}
		if !successStatuses[status] {
			continue
		}

		content, present := result["content"]
		if !present {
			content = any(result)
		}

		if s, ok := content.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				continue
			}
			content = decoded
		}

		switch v := content.(type) {
		case []any:
			all = append(all, onlyObjects(v)...)

		case map[string]any:
			wrapped := false
			for _, key := range wrapperKeys[:4] { // results key does not nest inside a result
				if nested, ok := v[key].([]any); ok {
					all = append(all, onlyObjects(nested)...)
					wrapped = true
					break
				}
			}
			if !wrapped && hasAnyKey(v, nameIndicators) {
				all = append(all, v)
			}
		}
	}

	return all
}

// onlyObjects keeps the object elements of a decoded array.
func onlyObjects(list []any) []RawProduct {
	out := make([]RawProduct, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

package search

// TranslateLegacyMapping rewrites pre-5.x index settings and mappings to the
// current syntax:
//
//	"type": "string"                     -> "type": "text"
//	"index": "analyzed"                  -> "index": true
//	"index": "not_analyzed"              -> "index": true, "type": "keyword"
//	"index_analyzer": ...                -> "analyzer": ...
//
// Maps and lists are walked recursively. Other values are returned as is.
func TranslateLegacyMapping(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return t
		}
		out := make(map[string]any, len(t))
		keyword := false
		for key, val := range t {
			switch {
			case key == "type" && val == "string":
				out[key] = "text"
			case key == "index" && (val == "analyzed" || val == "not_analyzed"):
				out[key] = true
				if val == "not_analyzed" {
					keyword = true
				}
			case key == "index_analyzer":
				out["analyzer"] = TranslateLegacyMapping(val)
			default:
				out[key] = TranslateLegacyMapping(val)
			}
		}
		// not_analyzed fields are exact-match regardless of their declared type
		if keyword {
			out["type"] = "keyword"
		}
		return out
	case []any:
		if len(t) == 0 {
			return t
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = TranslateLegacyMapping(item)
		}
		return out
	default:
		return v
	}
}

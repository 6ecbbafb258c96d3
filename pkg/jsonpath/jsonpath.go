package jsonpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup finds a value in a JSON document using a JSONPath expression or a
// plain gjson path. ok is false when the path does not exist. JSON null is
// returned as "null".
func Lookup(body []byte, path string) (value string, ok bool) {
	result := gjson.GetBytes(body, convertToGjsonPath(path))
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.Null {
		return "null", true
	}
	return result.String(), true
}

// Valid reports whether body is well-formed JSON.
func Valid(body []byte) bool {
	return gjson.ValidBytes(body)
}

// convertToGjsonPath converts a JSONPath expression to a gjson path format
//
//	JSONPath: $.users[0].name
//	gjson:    users.0.name
func convertToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}
	path = strings.TrimPrefix(path, ".")

	// Bracketed names: $['name'] and $["name"]
	path = strings.NewReplacer("['", "", "']", "", `["`, "", `"]`, "").Replace(path)

	// Root array access: [0].name -> 0.name
	if strings.HasPrefix(path, "[") {
		if end := strings.Index(path, "]"); end > 1 {
			path = path[1:end] + path[end+1:]
		}
	}

	// Nested indexes: items[0] -> items.0
	return strings.NewReplacer("[", ".", "]", "").Replace(path)
}

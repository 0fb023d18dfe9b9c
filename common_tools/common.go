// Package common_tools provides the tool catalog available to agents.
//
// Available tool groups:
//   - Docs: create, search, read, analyze, update, list and archive project documents
//   - Sheets: create spreadsheets, add rows/columns, edit cells, analyze and query data
//   - Email: read, list, search, analyze, translate, draft replies and summarize the inbox
//   - web_search: Brave Search API
//   - calculator: arithmetic expression evaluation
//
// Tools are built with NewTool, which decodes call arguments into a typed request.
// Each group lives in its own file.
package common_tools

import (
	"log"
	"os"
	"strings"
)

var logger = log.New(os.Stdout, "[TOOLS] ", log.LstdFlags)

// Result is the JSON object every catalog tool returns.
type Result map[string]interface{}

func success(fields Result) Result {
	out := Result{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Schema helpers for tool declarations.

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func intProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func boolProp(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func enumProp(desc string, values ...string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc, "enum": values}
}

func arrayProp(desc string, items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "description": desc, "items": items}
}

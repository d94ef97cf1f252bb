package mcp

import (
	"fmt"
	"strings"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// getRecordsArg reads an array of JSON objects.
func getRecordsArg(args map[string]interface{}, key string) ([]map[string]any, error) {
	val, ok := args[key]
	if !ok || val == nil {
		return nil, nil
	}
	items, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s must be an array of objects", key)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object", key, i)
		}
		out = append(out, rec)
	}
	return out, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v := getStringArg(args, key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// Package tree is a hierarchical key-value store addressed by slash
// separated paths, in the shape of the Firebase Realtime Database.
package tree

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Null is what Get returns for a path with no data.
var Null = json.RawMessage("null")

// Tree reads and writes JSON values by path.
//
// Set replaces the whole subtree at path. Update merges: each key of fields
// replaces only the child it names, siblings are kept. A nil value deletes.
// Keys lists the direct children of path without reading their values.
type Tree interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Keys(ctx context.Context, path string) ([]string, error)
	Set(ctx context.Context, path string, v any) error
	Update(ctx context.Context, path string, fields map[string]any) error
}

// Join builds a path from segments, dropping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// IsNull reports whether raw holds no value.
func IsNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// keysOf returns the child keys of a JSON object or the indexes of the
// non-null entries of a JSON array, sorted.
func keysOf(raw json.RawMessage) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k, v := range obj {
			if !IsNull(v) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return keys
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		keys := make([]string, 0, len(arr))
		for i, v := range arr {
			if !IsNull(v) {
				keys = append(keys, strconv.Itoa(i))
			}
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}

// Package payload searches loosely shaped JSON documents returned by the
// home-automation gateway.
package payload

import "sort"

// DefaultDepth bounds how far below a response root callers usually search.
const DefaultDepth = 4

// FindObject returns the shallowest JSON object within maxDepth levels of root
// (root itself is depth 0) for which match returns true. Siblings are visited
// in key order so results do not depend on map iteration.
func FindObject(root interface{}, maxDepth int, match func(map[string]interface{}) bool) (map[string]interface{}, bool) {
	level := []interface{}{root}
	for depth := 0; depth <= maxDepth && len(level) > 0; depth++ {
		var next []interface{}
		for _, node := range level {
			switch v := node.(type) {
			case map[string]interface{}:
				if match(v) {
					return v, true
				}
				for _, key := range SortedKeys(v) {
					next = append(next, v[key])
				}
			case []interface{}:
				next = append(next, v...)
			}
		}
		level = next
	}
	return nil, false
}

// FindArray returns the first array stored under one of keys, searching up to
// maxDepth levels below root. Earlier keys win at the same depth.
func FindArray(root interface{}, maxDepth int, keys ...string) ([]interface{}, bool) {
	var found []interface{}
	_, ok := FindObject(root, maxDepth, func(obj map[string]interface{}) bool {
		for _, key := range keys {
			if arr, isArray := obj[key].([]interface{}); isArray {
				found = arr
				return true
			}
		}
		return false
	})
	return found, ok
}

// FindString returns the first string stored under key within maxDepth levels.
func FindString(root interface{}, maxDepth int, key string) (string, bool) {
	var found string
	_, ok := FindObject(root, maxDepth, func(obj map[string]interface{}) bool {
		if s, isString := obj[key].(string); isString && s != "" {
			found = s
			return true
		}
		return false
	})
	return found, ok
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

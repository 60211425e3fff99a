package syncstore

import (
	"encoding/json"
	"fmt"
)

// normalize converts an arbitrary Go value into the JSON-like form kept in
// the tree and drops empty collections.
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}

	var out interface{}
	if err := json.Unmarshal(bytes, &out); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}

	return prune(out), nil
}

// prune removes empty maps and slices; the store never holds an empty
// collection, an absent node and an empty one are the same thing.
func prune(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			if p := prune(child); p == nil {
				delete(t, k)
			} else {
				t[k] = p
			}
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []interface{}:
		if len(t) == 0 {
			return nil
		}
		for i := range t {
			t[i] = prune(t[i])
		}
		return t
	default:
		return v
	}
}

func clone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = clone(t[i])
		}
		return out
	default:
		return v
	}
}

func getAt(root map[string]interface{}, segs []string) (interface{}, bool) {
	var node interface{} = root
	for _, s := range segs {
		m, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if node, ok = m[s]; !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	if m, ok := node.(map[string]interface{}); ok && len(m) == 0 {
		return nil, false
	}
	return node, true
}

// setAt writes an already normalized value. Intermediate scalars are
// replaced by maps.
func setAt(root map[string]interface{}, segs []string, v interface{}) {
	if v == nil {
		deleteAt(root, segs)
		return
	}

	node := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := node[s].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			node[s] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = v
}

func deleteAt(root map[string]interface{}, segs []string) {
	if len(segs) == 0 {
		return
	}

	parents := make([]map[string]interface{}, 0, len(segs))
	node := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := node[s].(map[string]interface{})
		if !ok {
			return
		}
		parents = append(parents, node)
		node = next
	}
	delete(node, segs[len(segs)-1])

	// drop ancestors left empty
	for i := len(parents) - 1; i >= 0 && len(node) == 0; i-- {
		delete(parents[i], segs[i])
		node = parents[i]
	}
}

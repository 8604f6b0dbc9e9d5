package sqlitestore

import (
	"slices"
	"strings"
)

// project applies a fields include/exclude projection to an item document.
// A field named in both lists stays included.
func project(doc map[string]any, include, exclude []string) map[string]any {
	out := doc
	if len(include) > 0 {
		out = make(map[string]any, len(include))
		for _, p := range include {
			copyPath(doc, out, strings.Split(p, "."))
		}
	}
	for _, p := range exclude {
		if slices.Contains(include, p) {
			continue
		}
		deletePath(out, strings.Split(p, "."))
	}
	return out
}

func copyPath(src, dst map[string]any, segs []string) {
	v, ok := src[segs[0]]
	if !ok {
		return
	}
	if len(segs) == 1 {
		dst[segs[0]] = v
		return
	}
	child, ok := v.(map[string]any)
	if !ok {
		return
	}
	var target map[string]any
	switch existing := dst[segs[0]].(type) {
	case map[string]any:
		target = existing
	case nil:
		target = map[string]any{}
		dst[segs[0]] = target
	default:
		return
	}
	copyPath(child, target, segs[1:])
}

func deletePath(m map[string]any, segs []string) {
	if len(segs) == 1 {
		delete(m, segs[0])
		return
	}
	if child, ok := m[segs[0]].(map[string]any); ok {
		deletePath(child, segs[1:])
	}
}

package search

import "slices"

// Cursor is the resume point of a federated scan: the collections not yet
// exhausted, in queue order, and the offset into the first of them. It is a
// value; pages never share its queue.
type Cursor struct {
	Remaining []string
	Offset    int
	Limit     int
}

// Start is the cursor of a fresh scan over candidates.
func Start(candidates []string, limit, offset int) Cursor {
	return Cursor{Remaining: slices.Clone(candidates), Offset: max(offset, 0), Limit: limit}
}

func (c Cursor) Clone() Cursor {
	c.Remaining = slices.Clone(c.Remaining)
	return c
}

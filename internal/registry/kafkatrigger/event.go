package kafkatrigger

import (
	"fmt"
	"strings"
	"time"
)

// Event announces a change to the collection registry source. Collection
// is empty when the whole document changed.
type Event struct {
	Version    int       `json:"version"`
	Op         string    `json:"op"`
	Collection string    `json:"collection,omitempty"`
	Source     string    `json:"source,omitempty"`
	Seq        uint64    `json:"seq,omitempty"`
	TS         time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "refresh", "upsert", "delete":
	default:
		return fmt.Errorf("op must be refresh|upsert|delete")
	}
	if e.Op != "refresh" && strings.TrimSpace(e.Collection) == "" {
		return fmt.Errorf("collection is required for op %s", e.Op)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}


package health

import (
	"encoding/json"
	"net/http"
	"sort"
)

// ReadinessReporter reports whether a component can serve, with a count
// describing its state (collections loaded, partitions assigned).
type ReadinessReporter interface {
	Readiness() (ready bool, count int)
}

// Readiness is ready when every named reporter is.
func Readiness(checks map[string]ReadinessReporter) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for n := range checks {
		names = append(names, n)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, _ *http.Request) {
		type check struct {
			Ready bool `json:"ready"`
			Count int  `json:"count"`
		}
		type resp struct {
			Status string           `json:"status"`
			Checks map[string]check `json:"checks"`
		}
		out := resp{Status: "ready", Checks: make(map[string]check, len(names))}
		for _, n := range names {
			ok, count := checks[n].Readiness()
			out.Checks[n] = check{Ready: ok, Count: count}
			if !ok {
				out.Status = "not_ready"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if out.Status != "ready" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

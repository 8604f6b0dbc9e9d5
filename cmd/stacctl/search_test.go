package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// pagedServer serves total features, limit per page, linked by offset.
func pagedServer(t *testing.T, total int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		feats := []any{}
		for i := offset; i < total && i < offset+limit; i++ {
			feats = append(feats, map[string]any{"type": "Feature", "id": fmt.Sprintf("f%d", i)})
		}
		links := []any{}
		if offset+limit < total {
			links = append(links, map[string]any{
				"rel":  "next",
				"href": fmt.Sprintf("%s/search?limit=%d&offset=%d", srv.URL, limit, offset+limit),
			})
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_ = json.NewEncoder(w).Encode(map[string]any{"type": "FeatureCollection", "features": feats, "links": links})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWalkPages_FollowsNext(t *testing.T) {
	srv := pagedServer(t, 7)
	var out bytes.Buffer
	n, pages, err := walkPages(context.Background(), srv.Client(), srv.URL+"/search?limit=3", 0, &out)
	if err != nil {
		t.Fatalf("walkPages: %v", err)
	}
	if n != 7 || pages != 3 {
		t.Fatalf("items=%d pages=%d, want 7 and 3", n, pages)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 7 || !strings.Contains(lines[6], `"f6"`) {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}

func TestWalkPages_MaxPages(t *testing.T) {
	srv := pagedServer(t, 7)
	var out bytes.Buffer
	n, pages, err := walkPages(context.Background(), srv.Client(), srv.URL+"/search?limit=3", 1, &out)
	if err != nil {
		t.Fatalf("walkPages: %v", err)
	}
	if n != 3 || pages != 1 {
		t.Fatalf("items=%d pages=%d, want 3 and 1", n, pages)
	}
}

func TestWalkPages_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"BadRequest"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	var out bytes.Buffer
	if _, _, err := walkPages(context.Background(), srv.Client(), srv.URL+"/search", 0, &out); err == nil {
		t.Fatal("expected error")
	}
}

package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
		code string
	}{
		{Invalid("bad bbox %q", "1,2"), http.StatusBadRequest, "BadRequest"},
		{NotFound("collection %s", "x"), http.StatusNotFound, "NotFound"},
		{Conflict("dup"), http.StatusInternalServerError, "ConfigurationConflict"},
		{Backend(errors.New("disk"), "query %s", "c1"), http.StatusBadGateway, "BackendUnavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "InternalServerError"},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v)=%d want %d", tc.err, got, tc.want)
		}
		if got := Code(tc.err); got != tc.code {
			t.Fatalf("Code(%v)=%q want %q", tc.err, got, tc.code)
		}
	}
}

func TestBackend_KeepsCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := fmt.Errorf("page: %w", Backend(cause, "query %s", "c1"))
	if !errors.Is(err, ErrBackendUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost its chain: %v", err)
	}
}

func TestWrite_JSONBody(t *testing.T) {
	rr := httptest.NewRecorder()
	status := Write(rr, NotFound("item a"))
	if status != http.StatusNotFound || rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d code=%d want 404", status, rr.Code)
	}
	var body struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "NotFound" || body.Description != "not found: item a" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

// Package router serves the STAC API endpoints on top of the federated
// search service.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/stac-federation/internal/core/apierr"
	"github.com/mohammed-shakir/stac-federation/internal/core/links"
	"github.com/mohammed-shakir/stac-federation/internal/core/model"
	"github.com/mohammed-shakir/stac-federation/internal/search"
)

const (
	catalogID   = "stac-federation"
	stacVersion = "1.0.0"
)

var conformance = []string{
	"https://api.stacspec.org/v1.0.0/core",
	"https://api.stacspec.org/v1.0.0/collections",
	"https://api.stacspec.org/v1.0.0/ogcapi-features",
	"https://api.stacspec.org/v1.0.0/item-search",
	"https://api.stacspec.org/v1.0.0/item-search#fields",
	"https://api.stacspec.org/v1.0.0/item-search#sort",
	"https://api.stacspec.org/v1.0.0/item-search#filter",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core",
	"http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/geojson",
	"http://www.opengis.net/spec/cql2/1.0/conf/cql2-text",
	"http://www.opengis.net/spec/cql2/1.0/conf/cql2-json",
	"http://www.opengis.net/spec/cql2/1.0/conf/basic-cql2",
}

// Backend is what the handlers need from the search service.
type Backend interface {
	Search(ctx context.Context, req model.SearchRequest) (search.Result, error)
	Items(ctx context.Context, collection string, req model.SearchRequest) (search.Result, error)
	Item(ctx context.Context, collection, id string) (model.Record, error)
	Collections(ctx context.Context) ([]model.Collection, error)
	Collection(ctx context.Context, id string) (model.Collection, error)
}

type API struct {
	backend Backend
	links   *links.Builder
	log     *slog.Logger
}

func New(backend Backend, lb *links.Builder, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{backend: backend, links: lb, log: log}
}

// Mount registers the API routes on r.
func (a *API) Mount(r chi.Router) {
	r.Get("/", a.Landing)
	r.Get("/conformance", a.Conformance)
	r.Get("/collections", a.ListCollections)
	r.Get("/collections/{collectionID}", a.GetCollection)
	r.Get("/collections/{collectionID}/items", a.ListItems)
	r.Get("/collections/{collectionID}/items/{itemID}", a.GetItem)
	r.Get("/search", a.SearchGet)
	r.Post("/search", a.SearchPost)
}

type featureCollection struct {
	Type           string         `json:"type"`
	Features       []model.Record `json:"features"`
	Links          []model.Link   `json:"links"`
	NumberReturned int            `json:"numberReturned"`
}

func (a *API) Landing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "application/json", map[string]any{
		"type":         "Catalog",
		"id":           catalogID,
		"title":        "STAC federation",
		"description":  "Federated search over independent collection stores",
		"stac_version": stacVersion,
		"conformsTo":   conformance,
		"links":        a.links.For(r).Landing(),
	})
}

func (a *API) Conformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "application/json", map[string]any{
		"conformsTo": conformance,
		"links":      a.links.For(r).Conformance(),
	})
}

func (a *API) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := a.backend.Collections(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	set := a.links.For(r)
	docs := make([]map[string]any, 0, len(cols))
	for _, c := range cols {
		docs = append(docs, set.Collection(c))
	}
	writeJSON(w, http.StatusOK, "application/json", map[string]any{
		"collections": docs,
		"links":       set.Collections(),
	})
}

func (a *API) GetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := a.backend.Collection(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "application/json", a.links.For(r).Collection(c))
}

func (a *API) ListItems(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSearchGet(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.backend.Items(r.Context(), chi.URLParam(r, "collectionID"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writePage(w, r, links.OriginOf(r, nil), res)
}

func (a *API) GetItem(w http.ResponseWriter, r *http.Request) {
	rec, err := a.backend.Item(r.Context(), chi.URLParam(r, "collectionID"), chi.URLParam(r, "itemID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, links.TypeGeoJSON, a.links.For(r).Record(rec))
}

func (a *API) SearchGet(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSearchGet(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.backend.Search(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writePage(w, r, links.OriginOf(r, nil), res)
}

func (a *API) SearchPost(w http.ResponseWriter, r *http.Request) {
	req, body, err := ParseSearchPost(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.backend.Search(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.writePage(w, r, links.OriginOf(r, body), res)
}

func (a *API) writePage(w http.ResponseWriter, r *http.Request, o links.Origin, res search.Result) {
	set := a.links.For(r)
	feats := make([]model.Record, len(res.Records))
	for i, rec := range res.Records {
		feats[i] = set.Record(rec)
	}
	writeJSON(w, http.StatusOK, links.TypeGeoJSON, featureCollection{
		Type:           "FeatureCollection",
		Features:       feats,
		Links:          set.Search(o, res.Next),
		NumberReturned: len(feats),
	})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apierr.Status(err)
	if status >= http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		a.log.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	apierr.Write(w, err)
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package emulator

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/basekit/base_sdk_go/internal/baseapi"
)

const apiKeyHeader = "X-API-Key"

// maxRequestBody bounds request bodies read by the HTTP handler.
const maxRequestBody = 4 << 20

// Registry serves every base of every project over HTTP, creating stores on
// first use. Routes live under prefix:
//
//	PUT    {prefix}/{project}/{base}/items
//	POST   {prefix}/{project}/{base}/items
//	GET    {prefix}/{project}/{base}/items/{key}
//	PATCH  {prefix}/{project}/{base}/items/{key}
//	DELETE {prefix}/{project}/{base}/items/{key}
//	POST   {prefix}/{project}/{base}/query
//
// Requests must carry an X-API-Key whose project part matches the route.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*Store
	seeds  map[string][]map[string]any
	opts   []Option
	mux    *http.ServeMux
}

// NewRegistry returns a registry serving routes under prefix, such as "/v1".
// opts apply to every store it creates.
func NewRegistry(prefix string, opts ...Option) *Registry {
	r := &Registry{
		stores: make(map[string]*Store),
		seeds:  make(map[string][]map[string]any),
		opts:   opts,
		mux:    http.NewServeMux(),
	}
	prefix = strings.TrimRight(prefix, "/")
	base := prefix + "/{project}/{base}"
	r.mux.HandleFunc("PUT "+base+"/items", r.forward(itemsPath))
	r.mux.HandleFunc("POST "+base+"/items", r.forward(itemsPath))
	r.mux.HandleFunc("GET "+base+"/items/{key}", r.forward(keyPath))
	r.mux.HandleFunc("PATCH "+base+"/items/{key}", r.forward(keyPath))
	r.mux.HandleFunc("DELETE "+base+"/items/{key}", r.forward(keyPath))
	r.mux.HandleFunc("POST "+base+"/query", r.forward(queryPath))
	return r
}

func itemsPath(*http.Request) string   { return "/items" }
func queryPath(*http.Request) string   { return "/query" }
func keyPath(req *http.Request) string { return "/items/" + req.PathValue("key") }

// Seed records items for the named base in every project. Stores created
// earlier receive them immediately.
func (r *Registry) Seed(baseName string, items []map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seeds[baseName] = append(r.seeds[baseName], items...)
	for id, s := range r.stores {
		if strings.HasSuffix(id, "/"+baseName) {
			if err := s.Seed(items); err != nil {
				return err
			}
		}
	}
	return nil
}

// Base returns the store of a base, creating and seeding it on first use.
func (r *Registry) Base(project, baseName string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := project + "/" + baseName
	if s, ok := r.stores[id]; ok {
		return s, nil
	}
	s := New(r.opts...)
	if err := s.Seed(r.seeds[baseName]); err != nil {
		return nil, err
	}
	r.stores[id] = s
	return s, nil
}

// ServeHTTP implements http.Handler.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Registry) forward(rel func(*http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		project := req.PathValue("project")
		if !authorized(req.Header.Get(apiKeyHeader), project) {
			writeRaw(w, http.StatusUnauthorized, errorJSON("unauthorized"))
			return
		}
		store, err := r.Base(project, req.PathValue("base"))
		if err != nil {
			writeRaw(w, http.StatusInternalServerError, errorJSON(err.Error()))
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBody))
		if err != nil {
			writeRaw(w, http.StatusBadRequest, errorJSON("read body: "+err.Error()))
			return
		}
		status, out := store.Handle(req.Method, rel(req), body)
		writeRaw(w, status, out)
	}
}

func authorized(dataKey, project string) bool {
	id, _, ok := strings.Cut(dataKey, "_")
	return ok && id != "" && id == project
}

func errorJSON(msg string) []byte {
	data, err := baseapi.Marshal(baseapi.ErrorBody{Errors: []string{msg}})
	if err != nil {
		return []byte(`{"errors":["internal error"]}`)
	}
	return data
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

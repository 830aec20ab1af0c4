// Package fakeapi provides an in-memory fake of the console backend for tests.
//
// It serves the resource routes the CRUD client calls, keeps records as
// generic maps, enforces the versioning rules of version-aware resources
// and can publish change notifications to a live broker. Failures are
// injected per resource and operation with FailNext.
package fakeapi

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cesarabad/muffinmanager/pkg/codec"
	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// Record is one stored entity.
type Record = map[string]any

// Publisher receives change notifications, e.g. a fake broker.
type Publisher func(topic, payload string)

type failure struct {
	status int
	body   string
}

type resource struct {
	versioned bool
	// key is the field holding the unique reference.
	key     string
	records map[int64]Record
}

// Server is a fake backend. The zero value is not usable, call New.
type Server struct {
	mu        sync.Mutex
	resources map[string]*resource
	nextID    int64
	failures  map[string]failure
	publish   Publisher
	token     string

	requests       []string
	authorizations []string

	httpServer *httptest.Server
}

type Option func(*Server)

// WithResource registers a resource path whose records are unique by "reference".
func WithResource(name string, versioned bool) Option {
	return WithKeyedResource(name, versioned, "reference")
}

// WithKeyedResource registers a resource whose records are unique by key,
// e.g. "name" for groups or "dni" for users.
func WithKeyedResource(name string, versioned bool, key string) Option {
	return func(s *Server) {
		s.resources[name] = &resource{versioned: versioned, key: key, records: map[int64]Record{}}
	}
}

// WithPublisher sends every mutation to p on /topic/<resource>.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publish = p }
}

// RequireToken rejects calls whose bearer token differs from token with 401.
func RequireToken(token string) Option {
	return func(s *Server) { s.token = token }
}

func New(opts ...Option) *Server {
	s := &Server{
		resources: map[string]*resource{},
		failures:  map[string]failure{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves the fake on a random local port.
func (s *Server) Start() *Server {
	s.httpServer = httptest.NewServer(s.Handler())
	return s
}

// URL is the base URL to configure the CRUD transport with.
func (s *Server) URL() string {
	return s.httpServer.URL
}

func (s *Server) Close() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// FailNext makes the next call of op on res answer status with body.
func (s *Server) FailNext(res, op string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[res+"/"+op] = failure{status: status, body: body}
}

// Seed stores rec under res and returns its id.
func (s *Server) Seed(res string, rec Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.resources[res]
	s.nextID++
	stored := clone(rec)
	stored["id"] = s.nextID
	if r.versioned {
		if _, ok := stored["version"]; !ok {
			stored["version"] = int64(1)
		}
		if _, ok := stored["obsolete"]; !ok {
			stored["obsolete"] = false
		}
	}
	r.records[s.nextID] = stored
	return s.nextID
}

// Records returns a copy of every record of res ordered by id.
func (s *Server) Records(res string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources[res].sorted(func(Record) bool { return true })
}

// Requests lists "METHOD /path" of every call served, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Authorizations lists the Authorization header of every call served.
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authorizations...)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/{resource}", func(res chi.Router) {
		res.Use(s.middleware)
		res.Get("/getAll", s.handleGetAll)
		res.Get("/getById/{id}", s.handleGetByID)
		res.Post("/insert", s.handleInsert)
		res.Post("/update", s.handleUpdate)
		res.Delete("/deleteById/{id}", s.handleDeleteByID)

		res.Get("/getObsoletes", s.handleGetObsoletes)
		res.Delete("/delete/{reference}", s.handleDeleteByReference)
		res.Post("/setObsolete/{reference}", s.handleSetObsolete)
		res.Post("/setObsoleteById/{id}", s.handleSetObsoleteByID)
		res.Post("/changeReference", s.handleChangeReference)
	})
	return r
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "resource")
		op := operation(req.URL.Path)
		auth := req.Header.Get("Authorization")

		s.mu.Lock()
		s.requests = append(s.requests, req.Method+" "+req.URL.Path)
		s.authorizations = append(s.authorizations, auth)
		_, known := s.resources[name]
		fail, injected := s.failures[name+"/"+op]
		delete(s.failures, name+"/"+op)
		token := s.token
		s.mu.Unlock()

		switch {
		case !known:
			writeMessage(w, req, http.StatusNotFound, "Unknown resource")
		case token != "" && auth != "Bearer "+token:
			writeMessage(w, req, http.StatusUnauthorized, "Unauthorized")
		case injected:
			w.WriteHeader(fail.status)
			_, _ = io.WriteString(w, fail.body)
		default:
			next.ServeHTTP(w, req)
		}
	})
}

func operation(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (s *Server) handleGetAll(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	r := s.resources[chi.URLParam(req, "resource")]
	items := r.sorted(func(rec Record) bool { return !r.versioned || !isObsolete(rec) })
	s.mu.Unlock()
	writeBody(w, req, http.StatusOK, items)
}

func (s *Server) handleGetObsoletes(w http.ResponseWriter, req *http.Request) {
	s.mu.Lock()
	r := s.resources[chi.URLParam(req, "resource")]
	if !r.versioned {
		s.mu.Unlock()
		writeMessage(w, req, http.StatusNotFound, "Resource is not versioned")
		return
	}
	items := r.sorted(isObsolete)
	s.mu.Unlock()
	writeBody(w, req, http.StatusOK, items)
}

func (s *Server) handleGetByID(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(w, req)
	if !ok {
		return
	}
	s.mu.Lock()
	rec, found := s.resources[chi.URLParam(req, "resource")].records[id]
	rec = clone(rec)
	s.mu.Unlock()
	if !found {
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	writeBody(w, req, http.StatusOK, rec)
}

func (s *Server) handleInsert(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	in, ok := readBody(w, req)
	if !ok {
		return
	}

	s.mu.Lock()
	r := s.resources[name]
	ref, _ := in[r.key].(string)
	if strings.TrimSpace(ref) == "" {
		s.mu.Unlock()
		writeMessage(w, req, http.StatusBadRequest, "Reference is required")
		return
	}
	now := stamp()
	in["lastModifyDate"] = now

	var saved Record
	if id, hasID := toInt64(in["id"]); hasID {
		if _, exists := r.records[id]; exists {
			in["id"] = id
			r.records[id] = in
			saved = clone(in)
		}
	}
	if saved == nil {
		if r.versioned {
			version := int64(0)
			for _, rec := range r.records {
				if rec[r.key] == ref {
					if v, _ := toInt64(rec["version"]); v > version {
						version = v
					}
					if !isObsolete(rec) {
						rec["obsolete"] = true
						rec["endDate"] = now
					}
				}
			}
			in["version"] = version + 1
			in["obsolete"] = false
			in["creationDate"] = now
			delete(in, "endDate")
		} else if r.hasReference(ref, 0) {
			s.mu.Unlock()
			writeMessage(w, req, http.StatusConflict, "Reference already exists")
			return
		}
		s.nextID++
		in["id"] = s.nextID
		r.records[s.nextID] = in
		saved = clone(in)
	}
	s.mu.Unlock()

	s.notify(name, saved)
	writeBody(w, req, http.StatusOK, saved)
}

func (s *Server) handleUpdate(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	in, ok := readBody(w, req)
	if !ok {
		return
	}
	id, hasID := toInt64(in["id"])
	if !hasID {
		writeMessage(w, req, http.StatusBadRequest, "Identifier is required")
		return
	}

	s.mu.Lock()
	r := s.resources[name]
	if _, exists := r.records[id]; !exists {
		s.mu.Unlock()
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	ref, _ := in[r.key].(string)
	if !r.versioned && r.hasReference(ref, id) {
		s.mu.Unlock()
		writeMessage(w, req, http.StatusConflict, "Reference already exists")
		return
	}
	in["id"] = id
	in["lastModifyDate"] = stamp()
	r.records[id] = in
	saved := clone(in)
	s.mu.Unlock()

	s.notify(name, saved)
	writeBody(w, req, http.StatusOK, saved)
}

func (s *Server) handleDeleteByID(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	id, ok := pathID(w, req)
	if !ok {
		return
	}
	s.mu.Lock()
	r := s.resources[name]
	_, exists := r.records[id]
	delete(r.records, id)
	s.mu.Unlock()
	if !exists {
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	s.notify(name, nil)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteByReference(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	ref := chi.URLParam(req, "reference")
	s.mu.Lock()
	r := s.resources[name]
	removed := 0
	for id, rec := range r.records {
		if rec[r.key] == ref {
			delete(r.records, id)
			removed++
		}
	}
	s.mu.Unlock()
	if removed == 0 {
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	s.notify(name, nil)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSetObsolete(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	ref := chi.URLParam(req, "reference")
	obsolete, err := strconv.ParseBool(req.URL.Query().Get("obsolete"))
	if err != nil {
		writeMessage(w, req, http.StatusBadRequest, "Invalid obsolete flag")
		return
	}

	s.mu.Lock()
	r := s.resources[name]
	var latest Record
	for _, rec := range r.records {
		if rec[r.key] != ref {
			continue
		}
		if obsolete {
			rec["obsolete"] = true
			rec["endDate"] = stamp()
			continue
		}
		if latest == nil || version(rec) > version(latest) {
			latest = rec
		}
	}
	found := latest != nil || obsolete && r.hasReference(ref, 0)
	if latest != nil {
		r.activate(latest)
	}
	s.mu.Unlock()

	if !found {
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	s.notify(name, nil)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSetObsoleteByID(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	id, ok := pathID(w, req)
	if !ok {
		return
	}
	obsolete, err := strconv.ParseBool(req.URL.Query().Get("obsolete"))
	if err != nil {
		writeMessage(w, req, http.StatusBadRequest, "Invalid obsolete flag")
		return
	}

	s.mu.Lock()
	r := s.resources[name]
	rec, exists := r.records[id]
	if exists {
		if obsolete {
			rec["obsolete"] = true
			rec["endDate"] = stamp()
		} else {
			r.activate(rec)
		}
	}
	saved := clone(rec)
	s.mu.Unlock()

	if !exists {
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	s.notify(name, saved)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleChangeReference(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "resource")
	oldRef := req.URL.Query().Get("oldReference")
	newRef := req.URL.Query().Get("newReference")

	s.mu.Lock()
	r := s.resources[name]
	if r.hasReference(newRef, 0) {
		s.mu.Unlock()
		writeMessage(w, req, http.StatusConflict, "Reference already exists")
		return
	}
	changed := 0
	for _, rec := range r.records {
		if rec[r.key] == oldRef {
			rec[r.key] = newRef
			changed++
		}
	}
	s.mu.Unlock()

	if changed == 0 {
		writeMessage(w, req, http.StatusNotFound, "Not found")
		return
	}
	s.notify(name, nil)
	w.WriteHeader(http.StatusOK)
}

// notify publishes rec, or the deleted sentinel when rec is nil.
func (s *Server) notify(name string, rec Record) {
	s.mu.Lock()
	publish := s.publish
	s.mu.Unlock()
	if publish == nil {
		return
	}
	payload := constants.DeletedSentinel
	if rec != nil {
		if data, err := codec.JSON().Marshal(rec); err == nil {
			payload = string(data)
		}
	}
	publish(constants.TopicPrefix+"/"+name, payload)
}

func (r *resource) sorted(keep func(Record) bool) []Record {
	ids := make([]int64, 0, len(r.records))
	for id, rec := range r.records {
		if keep(rec) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(r.records[id]))
	}
	return out
}

// hasReference reports whether another record than except uses ref.
func (r *resource) hasReference(ref string, except int64) bool {
	for id, rec := range r.records {
		if id != except && rec[r.key] == ref {
			return true
		}
	}
	return false
}

// activate makes rec the only active version of its reference.
func (r *resource) activate(rec Record) {
	for _, other := range r.records {
		if other[r.key] == rec[r.key] && !isObsolete(other) {
			other["obsolete"] = true
			other["endDate"] = stamp()
		}
	}
	rec["obsolete"] = false
	delete(rec, "endDate")
}

func isObsolete(rec Record) bool {
	obsolete, _ := rec["obsolete"].(bool)
	return obsolete
}

func version(rec Record) int64 {
	v, _ := toInt64(rec["version"])
	return v
}

func stamp() string {
	return time.Now().Format(models.LocalLayout)
}

func clone(rec Record) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func pathID(w http.ResponseWriter, req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		writeMessage(w, req, http.StatusBadRequest, fmt.Sprintf("Invalid id %q", chi.URLParam(req, "id")))
		return 0, false
	}
	return id, true
}

func codecOf(header string) codec.Codec {
	if strings.Contains(header, "cbor") {
		return codec.CBOR()
	}
	return codec.JSON()
}

func readBody(w http.ResponseWriter, req *http.Request) (Record, bool) {
	var rec Record
	if err := codecOf(req.Header.Get("Content-Type")).NewDecoder(req.Body).Decode(&rec); err != nil || rec == nil {
		writeMessage(w, req, http.StatusBadRequest, "Malformed body")
		return nil, false
	}
	return rec, true
}

func writeBody(w http.ResponseWriter, req *http.Request, status int, payload any) {
	c := codecOf(req.Header.Get("Accept"))
	w.Header().Set("Content-Type", c.ContentType())
	w.WriteHeader(status)
	_ = c.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, req *http.Request, status int, msg string) {
	writeBody(w, req, status, map[string]string{"message": msg})
}

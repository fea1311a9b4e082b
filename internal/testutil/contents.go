package testutil

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// ContentsServer is an in-memory contents API for tests.
//
// It follows the server semantics the client relies on: PUT creates files
// and directories (parents must exist), GET returns models with directory
// listings, DELETE refuses non-empty directories.
type ContentsServer struct {
	*httptest.Server

	mu       sync.Mutex
	entries  map[string]*entry
	token    string
	failPuts bool
}

type entry struct {
	typ     string
	content []byte
}

// NewContentsServer starts a fake contents API and registers its shutdown with t.
// If token is non-empty, requests without "Authorization: token <token>" get 403.
func NewContentsServer(t *testing.T, token string) *ContentsServer {
	t.Helper()

	s := &ContentsServer{
		entries: map[string]*entry{"": {typ: "directory"}},
		token:   token,
	}

	r := chi.NewRouter()
	r.Use(s.auth)
	r.Route("/api/contents", func(r chi.Router) {
		r.Get("/*", s.handleGet)
		r.Put("/*", s.handlePut)
		r.Delete("/*", s.handleDelete)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetFailPuts makes every subsequent PUT answer 500 while on is true.
func (s *ContentsServer) SetFailPuts(on bool) {
	s.mu.Lock()
	s.failPuts = on
	s.mu.Unlock()
}

// Has reports whether p exists.
func (s *ContentsServer) Has(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[norm(p)]
	return ok
}

// File returns the decoded content of file p.
func (s *ContentsServer) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[norm(p)]
	if !ok || e.typ == "directory" {
		return nil, false
	}
	return e.content, true
}

// Paths lists every stored path except the root, sorted.
func (s *ContentsServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.entries {
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Seed stores a file directly, creating parent directories.
func (s *ContentsServer) Seed(p string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = norm(p)
	for dir := path.Dir(p); dir != "." && dir != ""; dir = path.Dir(dir) {
		if _, ok := s.entries[dir]; !ok {
			s.entries[dir] = &entry{typ: "directory"}
		}
	}
	s.entries[p] = &entry{typ: "file", content: content}
}

func (s *ContentsServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "token "+s.token {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *ContentsServer) handleGet(w http.ResponseWriter, r *http.Request) {
	p := norm(chi.URLParam(r, "*"))

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[p]
	if !ok {
		http.Error(w, `{"message": "No such file or directory"}`, http.StatusNotFound)
		return
	}

	m := s.model(p, e, r.URL.Query().Get("content") != "0")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

func (s *ContentsServer) handlePut(w http.ResponseWriter, r *http.Request) {
	p := norm(chi.URLParam(r, "*"))

	var body struct {
		Type    string `json:"type"`
		Format  string `json:"format"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPuts {
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	if parent, ok := s.entries[parentOf(p)]; !ok || parent.typ != "directory" {
		http.Error(w, "parent directory missing", http.StatusNotFound)
		return
	}

	_, existed := s.entries[p]
	switch body.Type {
	case "directory":
		s.entries[p] = &entry{typ: "directory"}
	default:
		data := []byte(body.Content)
		if body.Format == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(body.Content)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data = decoded
		}
		s.entries[p] = &entry{typ: "file", content: data}
	}

	w.Header().Set("Content-Type", "application/json")
	if existed {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(s.model(p, s.entries[p], false))
}

func (s *ContentsServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	p := norm(chi.URLParam(r, "*"))

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[p]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if e.typ == "directory" && len(s.childrenLocked(p)) > 0 {
		http.Error(w, "directory not empty", http.StatusBadRequest)
		return
	}
	delete(s.entries, p)
	w.WriteHeader(http.StatusNoContent)
}

func (s *ContentsServer) model(p string, e *entry, withContent bool) map[string]any {
	m := map[string]any{
		"name": path.Base("/" + p),
		"path": p,
		"type": e.typ,
	}
	if !withContent {
		return m
	}
	if e.typ == "directory" {
		var children []map[string]any
		for _, c := range s.childrenLocked(p) {
			children = append(children, s.model(c, s.entries[c], false))
		}
		m["format"] = "json"
		m["content"] = children
		return m
	}
	m["format"] = "base64"
	m["content"] = base64.StdEncoding.EncodeToString(e.content)
	return m
}

func (s *ContentsServer) childrenLocked(dir string) []string {
	var out []string
	for p := range s.entries {
		if p != "" && parentOf(p) == dir {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func norm(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func parentOf(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}

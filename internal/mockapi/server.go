// Package mockapi is an in-memory stand-in for the quoting server,
// implementing the endpoint contract the sync engine speaks. It exists
// for offline development (the mockserver CLI command) and for
// integration tests; the real server is an external system.
package mockapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Record is a stored resource: arbitrary JSON fields plus the
// server-assigned id.
type Record map[string]any

// Server holds the in-memory state behind the handler.
type Server struct {
	mu        sync.Mutex
	seq       int
	customers []Record
	quotes    []Record
	plans     []Record
	// byLocalID implements create idempotency: a retried create carrying
	// a localId the server has already seen returns the existing record
	// instead of minting a duplicate.
	byLocalID map[string]Record
}

// New returns an empty mock server.
func New() *Server {
	return &Server{byLocalID: make(map[string]Record)}
}

// Handler returns the HTTP handler implementing the API contract.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", s.handleList(&s.customers))
			r.Post("/", s.handleCreate(&s.customers, "cus"))
			r.Patch("/{id}", s.handleUpdate(&s.customers))
			r.Delete("/{id}", s.handleDelete(&s.customers))
		})
		r.Route("/quotes", func(r chi.Router) {
			r.Get("/", s.handleList(&s.quotes))
			r.Post("/", s.handleCreate(&s.quotes, "qt"))
			r.Patch("/{id}", s.handleUpdate(&s.quotes))
			r.Delete("/{id}", s.handleDelete(&s.quotes))
		})
		r.Post("/floorplans", s.handleUploadPlan)
		r.Delete("/floorplans/{id}", s.handleDelete(&s.plans))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Server) handleList(coll *[]Record) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		out := make([]Record, len(*coll))
		copy(out, *coll)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleCreate(coll *[]Record, prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if localID, _ := rec["localId"].(string); localID != "" {
			if existing, ok := s.byLocalID[localID]; ok {
				writeJSON(w, http.StatusCreated, existing)
				return
			}
			rec["id"] = s.nextID(prefix)
			s.byLocalID[localID] = rec
		} else {
			rec["id"] = s.nextID(prefix)
		}
		delete(rec, "synced")
		*coll = append(*coll, rec)
		writeJSON(w, http.StatusCreated, rec)
	}
}

func (s *Server) handleUpdate(coll *[]Record) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var patch Record
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		for _, rec := range *coll {
			if rec["id"] == id {
				for k, v := range patch {
					if k == "id" || k == "localId" || k == "serverId" || k == "synced" {
						continue
					}
					rec[k] = v
				}
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (s *Server) handleDelete(coll *[]Record) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		s.mu.Lock()
		defer s.mu.Unlock()
		for i, rec := range *coll {
			if rec["id"] == id {
				*coll = append((*coll)[:i], (*coll)[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// handleUploadPlan accepts the multipart plan upload: a metadata field
// plus the file part.
func (s *Server) handleUploadPlan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	var rec Record
	if meta := r.FormValue("metadata"); meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid metadata"})
			return
		}
	} else {
		rec = Record{}
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file part"})
		return
	}
	defer file.Close()
	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable file part"})
		return
	}
	rec["receivedBytes"] = size

	s.mu.Lock()
	defer s.mu.Unlock()
	if localID, _ := rec["localId"].(string); localID != "" {
		if existing, ok := s.byLocalID[localID]; ok {
			writeJSON(w, http.StatusCreated, existing)
			return
		}
		rec["id"] = s.nextID("fp")
		s.byLocalID[localID] = rec
	} else {
		rec["id"] = s.nextID("fp")
	}
	delete(rec, "synced")
	s.plans = append(s.plans, rec)
	writeJSON(w, http.StatusCreated, rec)
}

// Customers returns a copy of the stored customer records (test helper).
func (s *Server) Customers() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.customers))
	copy(out, s.customers)
	return out
}

// Quotes returns a copy of the stored quote records (test helper).
func (s *Server) Quotes() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.quotes))
	copy(out, s.quotes)
	return out
}

// FloorPlans returns a copy of the stored plan records (test helper).
func (s *Server) FloorPlans() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.plans))
	copy(out, s.plans)
	return out
}

package web

import (
	"encoding/json"
	"net/http"
	"sort"

	"bucketset/store"

	"github.com/gookit/slog"
	"github.com/pkg/errors"
)

// Server contains HTTP method handlers to be used for the set store.
type Server struct {
	store *store.SetStore
}

// NewServer creates a new instance with HTTP handlers to read sets and
// apply batched mutations.
func NewServer(st *store.SetStore) *Server {
	return &Server{store: st}
}

type valuesResponse struct {
	Values []string `json:"values"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// batchRequest carries one transaction: its ops are appended in order
// and executed as a single reported unit.
type batchRequest struct {
	Ops []batchOp `json:"ops"`
}

type batchOp struct {
	Op     string   `json:"op"` // add | remove | del
	Bucket string   `json:"bucket"`
	Key    string   `json:"key,omitempty"`
	Keys   []string `json:"keys,omitempty"`
	Values []string `json:"values,omitempty"`
}

// GetHandler handles set reads.
func (s *Server) GetHandler(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	bucket := r.Form.Get("bucket")
	key := r.Form.Get("key")

	set, err := s.store.Get(bucket, key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeValues(w, set.ToSlice())
}

// UnionHandler merges the value sets of every listed key in one bucket.
func (s *Server) UnionHandler(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	bucket := r.Form.Get("bucket")
	keys := r.Form["key"]

	set, err := s.store.Union(bucket, keys...)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeValues(w, set.ToSlice())
}

// BatchHandler accepts one transaction worth of mutations, appends them
// in request order and ends the transaction.
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed batch: " + err.Error()})
		return
	}

	txn := s.store.Begin()
	for _, op := range req.Ops {
		var err error
		switch op.Op {
		case "add":
			err = s.store.Add(txn, op.Bucket, op.Key, op.Values...)
		case "remove":
			err = s.store.Remove(txn, op.Bucket, op.Key, op.Values...)
		case "del":
			keys := op.Keys
			if len(keys) == 0 && op.Key != "" {
				keys = []string{op.Key}
			}
			err = s.store.Del(txn, op.Bucket, keys...)
		default:
			err = &store.ValidationError{Reason: "unknown op " + op.Op}
		}

		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	if err := s.store.End(txn); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CleanHandler wipes every entry across all buckets.
func (s *Server) CleanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.Clean(); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeError maps validation failures to 400 and storage faults to 500,
// keeping the two kinds distinguishable for callers.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
		return
	}

	slog.Errorf("storage fault: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeValues(w http.ResponseWriter, values []string) {
	// Member order is unspecified; sorting just keeps responses stable.
	sort.Strings(values)
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, valuesResponse{Values: values})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Errorf("encoding response: %v", err)
	}
}

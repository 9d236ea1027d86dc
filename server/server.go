// Package server exposes a document recorder over HTTP.  A remote
// acquisition process POSTs each document to /document/{kind} as JSON; the
// reply code reports whether the recorder accepted it.
package server

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"github.com/bcda-aps/specd/document"
	"github.com/bcda-aps/specd/specfile"
	"github.com/bcda-aps/specd/specwriter"
)

// StrT is a JSON string payload, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// CommentT is a JSON comment payload; Phase defaults to "start"
type CommentT struct {
	Phase string `json:"phase"`
	Text  string `json:"text"`
}

// Status describes the recorder's current run over JSON.
type Status struct {
	Filename   string `json:"filename"`
	Collecting bool   `json:"collecting"`
	UID        string `json:"uid"`
	ScanID     int    `json:"scan_id"`
	Rows       int    `json:"rows"`
}

// Server wraps a Writer and its document Router with HTTP handlers.
type Server struct {
	writer *specwriter.Writer
	router *document.Router
}

// New returns a Server recording through w.
func New(w *specwriter.Writer) *Server {
	return &Server{writer: w, router: &document.Router{H: w}}
}

// RouteTable maps method+pattern pairs to handlers.
type RouteTable map[string]http.HandlerFunc

// Routes returns the route table this server binds.
func (s *Server) Routes() RouteTable {
	return RouteTable{
		"POST /document/{kind}": s.ReceiveDocument,
		"GET /filename":         s.GetFilename,
		"POST /filename":        s.SetFilename,
		"POST /comment":         s.PutComment,
		"POST /write":           s.WriteScan,
		"GET /status":           s.GetStatus,
	}
}

// Bind attaches the server's routes plus a route-listing endpoint to r.
func (s *Server) Bind(r chi.Router) {
	r.Post("/document/{kind}", s.ReceiveDocument)
	r.Get("/filename", s.GetFilename)
	r.Post("/filename", s.SetFilename)
	r.Post("/comment", s.PutComment)
	r.Post("/write", s.WriteScan)
	r.Get("/status", s.GetStatus)
	r.Get("/list-of-routes", func(w http.ResponseWriter, req *http.Request) {
		routes := make([]string, 0)
		for k := range s.Routes() {
			routes = append(routes, k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(routes)
		if err != nil {
			fstr := fmt.Sprintf("error encoding list of routes data to json %q", err)
			log.Println(fstr)
			http.Error(w, fstr, http.StatusInternalServerError)
		}
	})
}

// ReceiveDocument ingests one document.  The kind comes from the URL, the
// payload from the body.  Duplicate-run and duplicate-descriptor errors
// come back as 409; malformed documents as 400; disk trouble as 500.
func (s *Server) ReceiveDocument(w http.ResponseWriter, req *http.Request) {
	kind := chi.URLParam(req, "kind")
	body, err := ioutil.ReadAll(req.Body)
	defer req.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.router.ReceiveJSON(kind, body)
	if err != nil {
		log.Printf("server: document %s rejected: %v", kind, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func statusFor(err error) int {
	switch errors.Cause(err).(type) {
	case specfile.DuplicateRunError, specfile.HeaderCollisionError:
		return http.StatusConflict
	}
	if errors.Is(err, document.ErrMissingUID) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// GetFilename replies with the output file path as JSON {"str": path}
func (s *Server) GetFilename(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(StrT{Str: s.writer.Filename()})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetFilename parses a JSON input of {"str": path} and points the recorder
// at a new output file
func (s *Server) SetFilename(w http.ResponseWriter, req *http.Request) {
	str := StrT{}
	err := json.NewDecoder(req.Body).Decode(&str)
	defer req.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.writer.NewFile(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PutComment adds a free-text comment to the run in progress, or buffers
// it for the next run if none is open
func (s *Server) PutComment(w http.ResponseWriter, req *http.Request) {
	c := CommentT{}
	err := json.NewDecoder(req.Body).Decode(&c)
	defer req.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.Phase == "" {
		c.Phase = string(specwriter.PhaseStart)
	}
	err = s.writer.PutComment(specwriter.Phase(c.Phase), c.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// WriteScan forces serialization of the accumulated run; used with
// AutoWrite off
func (s *Server) WriteScan(w http.ResponseWriter, req *http.Request) {
	err := s.writer.WriteScan()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetStatus replies with the recorder's run state as JSON
func (s *Server) GetStatus(w http.ResponseWriter, req *http.Request) {
	st := Status{
		Filename:   s.writer.Filename(),
		Collecting: s.writer.Collecting(),
		UID:        s.writer.UID(),
		ScanID:     s.writer.ScanID(),
		Rows:       s.writer.Rows(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Package server exposes a bound session over HTTP.
//
// Routes:
//
//	GET    /state                    bound object
//	GET    /fields/{path}            value at path
//	PUT    /fields/{path}            write a value (JSON body)
//	POST   /import                   merge an object (JSON body)
//	POST   /validate                 validate every field
//	GET    /history                  entries, oldest first
//	POST   /history                  record a snapshot now
//	DELETE /history                  drop the persisted history
//	POST   /history/{ref}/restore    restore an entry by ID or timestamp
//	POST   /submit                   run the submission flow
//	GET    /form                     rendered form HTML
//
// Errors are JSON {"error": ..., "code": ...}. Malformed input maps to
// 400, unknown paths and history references to 404, and a destroyed
// session to 409.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/bindform/internal/engine"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Renderer is implemented by forms that can render themselves as HTML.
type Renderer interface {
	RenderForm() (string, error)
}

// Server serves one session.
type Server struct {
	session *engine.Session
	logger  *slog.Logger
	router  *chi.Mux
}

// New builds the router for session. A nil logger uses slog.Default().
func New(session *engine.Session, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{session: session, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	s.RegisterHTTP(r)
	s.router = r
	return s
}

// RegisterHTTP mounts the routes on r.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/state", s.handleState)
	r.Get("/fields/{path}", s.handleGetField)
	r.Put("/fields/{path}", s.handleSetField)
	r.Post("/import", s.handleImport)
	r.Post("/validate", s.handleValidate)
	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.handleListHistory)
		r.Post("/", s.handleSaveHistory)
		r.Delete("/", s.handleClearHistory)
		r.Post("/{ref}/restore", s.handleRestore)
	})
	r.Post("/submit", s.handleSubmit)
	r.Get("/form", s.handleForm)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("http server stopping")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Export())
}

type fieldResponse struct {
	Path  string   `json:"path"`
	Value ir.Value `json:"value"`
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")
	v, ok, err := s.session.Get(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error: fmt.Sprintf("no value at %q", path),
			Code:  string(engine.CodeNotFound),
		})
		return
	}
	writeJSON(w, http.StatusOK, fieldResponse{Path: path, Value: v})
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := ir.UnmarshalValue(body)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	changed, err := s.session.SetField(chi.URLParam(r, "path"), v)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	obj, err := ir.UnmarshalObject(body)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	changed, err := s.session.Import(obj)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ok, err := s.session.ValidateAll()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	entries := s.session.HistoryEntries()
	if entries == nil {
		entries = []history.Meta{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type saveResponse struct {
	Recorded bool          `json:"recorded"`
	Entry    *history.Meta `json:"entry,omitempty"`
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	meta, recorded, err := s.session.SaveHistory(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !recorded {
		writeJSON(w, http.StatusOK, saveResponse{})
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{Recorded: true, Entry: &meta})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearHistory(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RestoreHistory(chi.URLParam(r, "ref")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Export())
}

type submitResponse struct {
	Submitted bool   `json:"submitted"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ran, err := s.session.Submit(r.Context())
	var ee *engine.Error
	if errors.As(err, &ee) {
		s.writeError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, submitResponse{Submitted: ran, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Submitted: ran})
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	rf, ok := s.session.Form().(Renderer)
	if !ok {
		http.Error(w, "form cannot be rendered", http.StatusNotImplemented)
		return
	}
	markup, err := rf.RenderForm()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, markup)
}

// ---------------------------------------------------------------------------
// Plumbing

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// statusOf maps engine error codes to HTTP statuses.
func statusOf(err error) (int, string) {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError, ""
	}
	switch ee.Code {
	case engine.CodeInvalidArgument, engine.CodeCodecError:
		return http.StatusBadRequest, string(ee.Code)
	case engine.CodeNotFound:
		return http.StatusNotFound, string(ee.Code)
	case engine.CodeNotBound, engine.CodeAlreadyBound:
		return http.StatusConflict, string(ee.Code)
	case engine.CodeValidationFailure:
		return http.StatusUnprocessableEntity, string(ee.Code)
	default:
		return http.StatusInternalServerError, string(ee.Code)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func badRequest(err error) error {
	return &engine.Error{Code: engine.CodeInvalidArgument, Op: "decode_body", Err: err}
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, badRequest(err)
	}
	if len(body) > maxBody {
		return nil, badRequest(fmt.Errorf("body exceeds %d bytes", maxBody))
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// logRequests logs one line per request once it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Package api exposes the ingestion pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/classify"
	"github.com/plateful/plateful/internal/model"
	"github.com/plateful/plateful/internal/persist"
	"github.com/plateful/plateful/internal/pipeline"
	"github.com/plateful/plateful/internal/store"
	"github.com/plateful/plateful/internal/vision"
)

// Ingestor is the pipeline surface the HTTP layer depends on.
type Ingestor interface {
	SubmitText(ctx context.Context, raw string) (*model.SubmissionResult, error)
	SubmitImages(ctx context.Context, pages []vision.Page) (*model.SubmissionResult, error)
	Variation(ctx context.Context, parentID string, kind model.VariationKind) (*model.SubmissionResult, error)
	Fork(ctx context.Context, parentID string, edited *model.CanonicalRecipe, changeDescription, pointerID string) (*model.CacheRecord, error)
	Patch(ctx context.Context, id string, req persist.PatchRequest) (*model.CacheRecord, error)
	Get(ctx context.Context, id string) (*model.CacheRecord, error)
	GetPointer(ctx context.Context, id string) (*model.SavedPointer, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP layer.
type Options struct {
	AllowedOrigins []string
	MaxImageBytes  int64
	MaxImagePages  int
}

// Server handles the recipe API routes.
type Server struct {
	ingestor Ingestor
	pinger   Pinger
	opts     Options
}

// NewServer builds the API server over the given pipeline.
func NewServer(ingestor Ingestor, pinger Pinger, opts Options) *Server {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 20 << 20
	}
	if opts.MaxImagePages <= 0 {
		opts.MaxImagePages = 8
	}
	return &Server{ingestor: ingestor, pinger: pinger, opts: opts}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/ingest/images", s.handleIngestImages)
		r.Route("/recipes/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRecipe)
			r.Patch("/", s.handlePatchRecipe)
			r.Post("/fork", s.handleFork)
			r.Post("/variation", s.handleVariation)
		})
		r.Get("/pointers/{id}", s.handleGetPointer)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
		Mode  string `json:"mode,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}
	// A URL typed into the name field (or prose into the URL field) is a
	// mode mismatch, rejected rather than silently reclassified.
	if req.Mode != "" && !classify.MatchesMode(classify.Classify(req.Input), req.Mode) {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "input does not match the "+req.Mode+" field")
		return
	}
	res, err := s.ingestor.SubmitText(r.Context(), req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIngestImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.opts.MaxImageBytes); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["pages"]
	if len(files) == 0 {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "attach at least one page")
		return
	}
	if len(files) > s.opts.MaxImagePages {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "too many pages")
		return
	}

	pages := make([]vision.Page, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "unreadable page upload")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "unreadable page upload")
			return
		}
		mimeType := fh.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		pages = append(pages, vision.Page{MIMEType: mimeType, Data: data})
	}

	res, err := s.ingestor.SubmitImages(r.Context(), pages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ingestor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetPointer(w http.ResponseWriter, r *http.Request) {
	p, err := s.ingestor.GetPointer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePatchRecipe(w http.ResponseWriter, r *http.Request) {
	var req persist.PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}
	rec, err := s.ingestor.Patch(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Edited            *model.CanonicalRecipe `json:"edited,omitempty"`
		ChangeDescription string                 `json:"change_description,omitempty"`
		PointerID         string                 `json:"pointer_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}
	rec, err := s.ingestor.Fork(r.Context(), chi.URLParam(r, "id"), req.Edited, req.ChangeDescription, req.PointerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleVariation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		return
	}
	res, err := s.ingestor.Variation(r.Context(), chi.URLParam(r, "id"), model.VariationKind(req.Kind))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	if pe, ok := pipeline.AsError(err); ok {
		writeJSON(w, pe.HTTPStatus(), errorBody{Code: string(pe.Code), Message: pe.Message})
		return
	}
	if eris.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "recipe not found"})
		return
	}
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("writing response failed", zap.Error(err))
	}
}

// Package server exposes the heatmap pipeline over HTTP.
//
// Routes:
//
//	POST /v1/build_heatmap_html   run the pipeline, respond {"html_dir": ...}
//	GET  /v1/status               service state and build information
//	GET  /healthz                 liveness probe
//
// The build request body is the parameter map accepted by
// pipeline.ParseParams. Errors are returned as {"code", "message"} with the
// HTTP status chosen from the error code.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/clustermap/pkg/buildinfo"
	"github.com/matzehuels/clustermap/pkg/config"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/observability"
	"github.com/matzehuels/clustermap/pkg/pipeline"
)

// MaxBodyBytes bounds the size of a build request body.
const MaxBodyBytes = 1 << 20

const shutdownTimeout = 10 * time.Second

// Server serves the pipeline.
type Server struct {
	Runner *pipeline.Runner
	Logger *log.Logger

	// Defaults fill parameters absent from a build request, such as the
	// deployment's preferred distance metric.
	Defaults map[string]any

	router *chi.Mux
}

// New creates a server around runner.
func New(runner *pipeline.Runner, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{Runner: runner, Logger: logger, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(hooksMiddleware)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/build_heatmap_html", s.handleBuild)
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on cfg.Addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, cfg config.Server) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
	}

	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

type buildResponse struct {
	HTMLDir  string   `json:"html_dir"`
	Warnings []string `json:"warnings,omitempty"`
}

type statusResponse struct {
	State         string `json:"state"`
	Message       string `json:"message"`
	Version       string `json:"version"`
	GitCommitHash string `json:"git_commit_hash"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:         "OK",
		Message:       "",
		Version:       buildinfo.Version,
		GitCommitHash: buildinfo.Commit,
	})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for k, v := range s.Defaults {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	result, err := s.Runner.ExecuteParams(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("built heatmap",
		"request_id", middleware.GetReqID(r.Context()),
		"dir", result.Dir,
		"rows", result.Stats.Rows,
		"cols", result.Stats.Cols,
		"cached", result.CacheInfo.PayloadHit)
	writeJSON(w, http.StatusOK, buildResponse{HTMLDir: result.Dir, Warnings: result.Warnings})
}

// decodeParams reads a JSON object, keeping numbers as json.Number.
func decodeParams(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidParameter, err, "request body must be a JSON object")
	}
	if params == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "request body must be a JSON object")
	}
	return params, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
	} else {
		s.Logger.Warn("request rejected", "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeJSON(w, status, errorResponse{Code: string(code), Message: errors.UserMessage(err)})
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.IsValidation(err), errors.Is(err, errors.ErrCodeInvalidMatrix):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrCodeFileNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// hooksMiddleware reports requests to the registered server hooks.
func hooksMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks := observability.Server()
		start := time.Now()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
	})
}

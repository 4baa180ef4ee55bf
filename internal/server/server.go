// Package server publishes a federated repository over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/federation"
	"github.com/frederic-klein/yamr/internal/index"
	"github.com/frederic-klein/yamr/internal/query"
)

// Server serves the query API, the module index and artifacts.
type Server struct {
	root   *federation.Root
	logger *log.Logger
}

// New creates a server for root.
func New(root *federation.Root, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{root: root, logger: logger}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", s.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Get("/complete", s.Complete)
		r.Get("/search", s.Search)
		r.Get("/modules/{name}/versions", s.Versions)
	})
	r.Get("/"+index.FileName, s.Index)
	r.Get("/artifacts/*", s.Artifact)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"repositories": len(s.root.Roots()),
	})
}

// Complete handles GET /api/complete?q=prefix
func (s *Server) Complete(w http.ResponseWriter, r *http.Request) {
	q, err := moduleQuery(r, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := query.NewSearchResult()
	if err := s.root.CompleteModules(r.Context(), q, res); err != nil {
		s.queryFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(res))
}

// Search handles GET /api/search?q=text
// Paging params: start, count and, for follow-up pages, paging_info.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q, err := moduleQuery(r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := query.NewSearchResult()
	if err := s.root.SearchModules(r.Context(), q, res); err != nil {
		if errors.Is(err, federation.ErrPagingInfoMismatch) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.queryFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse(res))
}

// Versions handles GET /api/modules/{name}/versions
func (s *Server) Versions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	platform, err := platformParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vq := query.NewVersionQuery(name, r.URL.Query().Get("version"), platform)
	res := query.NewVersionResult(name)
	if err := s.root.CompleteVersions(r.Context(), vq, res); err != nil {
		s.queryFailed(w, err)
		return
	}

	out := make([]versionJSON, 0, res.Len())
	for _, v := range res.Versions() {
		out = append(out, toVersionJSON(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"module":   name,
		"versions": out,
		"count":    len(out),
	})
}

// Index handles GET /index.json.gz, the format index.Remote consumes.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	f, err := index.Build(r.Context(), s.root, dist.Platforms)
	if err != nil {
		s.queryFailed(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	if err := index.WriteFile(w, f); err != nil {
		s.logger.Warn("writing index", "error", err)
	}
}

// Artifact handles GET /artifacts/<module path>/<version>/<file>
func (s *Server) Artifact(w http.ResponseWriter, r *http.Request) {
	segs := strings.Split(strings.Trim(chi.URLParam(r, "*"), "/"), "/")
	ref, err := dist.ParseArtifactPath(segs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rc, err := s.root.Fetch(r.Context(), ref)
	var fe *federation.FetchError
	switch {
	case errors.Is(err, federation.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.As(err, &fe):
		s.logger.Warn("fetch failed", "artifact", ref.String(), "origin", fe.Origin, "error", fe.Err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		s.queryFailed(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("streaming artifact", "artifact", ref.String(), "error", err)
	}
}

func (s *Server) queryFailed(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func platformParam(r *http.Request) (dist.Platform, error) {
	t := r.URL.Query().Get("type")
	if t == "" {
		return dist.PlatformJVM, nil
	}
	return dist.ParsePlatform(t)
}

// moduleQuery reads q, type, binary and, for searches, the paging and
// member parameters.
func moduleQuery(r *http.Request, search bool) (query.ModuleQuery, error) {
	params := r.URL.Query()
	platform, err := platformParam(r)
	if err != nil {
		return query.ModuleQuery{}, err
	}

	var opts []query.Option
	if b := params.Get("binary"); b != "" {
		opt, err := ParseBinaryVersion(b)
		if err != nil {
			return query.ModuleQuery{}, err
		}
		opts = append(opts, opt)
	}

	if search {
		for _, p := range []struct {
			key string
			opt func(int64) query.Option
		}{
			{"start", query.WithStart},
			{"count", query.WithCount},
		} {
			v := params.Get(p.key)
			if v == "" {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return query.ModuleQuery{}, errors.New("invalid " + p.key + " parameter")
			}
			opts = append(opts, p.opt(n))
		}
		if v := params.Get("paging_info"); v != "" {
			info, err := ParsePagingInfo(v)
			if err != nil {
				return query.ModuleQuery{}, err
			}
			opts = append(opts, query.WithPagingInfo(info))
		}
		if m := params.Get("member"); m != "" {
			opts = append(opts, query.WithMember(m, params.Get("exact") == "true", params.Get("package_only") == "true"))
		}
	}

	return query.New(params.Get("q"), platform, opts...), nil
}

// ParseBinaryVersion turns MAJOR or MAJOR.MINOR into a query filter.
func ParseBinaryVersion(s string) (query.Option, error) {
	major, minor, hasMinor := strings.Cut(s, ".")
	mj, err := strconv.Atoi(major)
	if err != nil {
		return nil, fmt.Errorf("invalid binary version %q", s)
	}
	if !hasMinor {
		return query.WithBinaryMajor(mj), nil
	}
	mn, err := strconv.Atoi(minor)
	if err != nil {
		return nil, fmt.Errorf("invalid binary version %q", s)
	}
	return query.WithBinaryVersion(mj, mn), nil
}

// ParsePagingInfo parses a comma-separated continuation token.
func ParsePagingInfo(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	info := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || n < 0 {
			return nil, errors.New("invalid paging_info parameter")
		}
		info[i] = n
	}
	return info, nil
}

// FormatPagingInfo is the inverse of ParsePagingInfo.
func FormatPagingInfo(info []int64) string {
	parts := make([]string, len(info))
	for i, n := range info {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, ",")
}

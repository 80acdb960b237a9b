package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/api"
	"github.com/or7nge/sheet-music-transcriber/internal/config"
	"github.com/or7nge/sheet-music-transcriber/internal/jobs"
	"github.com/or7nge/sheet-music-transcriber/internal/logging"
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	cfg     *config.Config
	manager *jobs.Manager
	engine  EngineProbe

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, manager *jobs.Manager, engine EngineProbe, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		logger:  logger,
		cfg:     cfg,
		manager: manager,
		engine:  engine,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJob)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	return s.server.Handler
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	probeCtx, cancel := context.WithTimeout(r.Context(), s.cfg.EngineAvailabilityTimeout())
	defer cancel()

	active, err := s.manager.ActiveCount(r.Context())
	if err != nil {
		s.log().Warn("active job count failed", logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:        "ok",
		HomrAvailable: s.engine.Available(probeCtx),
		MaxUploadMB:   s.cfg.Uploads.MaxUploadMB,
		ActiveJobs:    active,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if minFree := s.cfg.Uploads.MinFreeMB; minFree > 0 {
		free, err := availableBytes(s.cfg.Paths.JobsDir)
		if err == nil && free < uint64(minFree)*1024*1024 {
			s.writeError(w, http.StatusServiceUnavailable, "Insufficient disk space to accept uploads.")
			return
		}
	}

	part, filename, err := uploadPart(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.manager.Submit(r.Context(), filename, part)
	switch {
	case errors.Is(err, jobs.ErrUnsupportedFormat):
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Detail:            "Unsupported file format. Upload JPG, PNG, or PDF.",
			AllowedExtensions: []string{".jpeg", ".jpg", ".pdf", ".png"},
		})
		return
	case errors.Is(err, jobs.ErrUploadTooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large. Max upload size is %dMB.", s.cfg.Uploads.MaxUploadMB))
		return
	case err != nil:
		s.log().Error("upload rejected", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to accept upload.")
		return
	}

	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromSnapshot(snap)})
}

// uploadPart streams the multipart body up to the "file" field without
// buffering the whole request.
func uploadPart(r *http.Request) (io.Reader, string, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, "", errors.New("expected a multipart upload with a file field")
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, "", errors.New("upload is missing the file field")
		}
		if err != nil {
			return nil, "", fmt.Errorf("read multipart body: %w", err)
		}
		if part.FormName() == "file" {
			return part, partFilename(part), nil
		}
		_ = part.Close()
	}
}

func partFilename(part *multipart.Part) string {
	if name := part.FileName(); name != "" {
		return name
	}
	return "upload"
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	segments := strings.Split(rest, "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		s.serveSnapshot(w, r, segments[0])
	case len(segments) == 3 && segments[1] == "files" && segments[2] != "":
		s.serveArtifact(w, r, segments[0], segments[2])
	default:
		s.writeError(w, http.StatusNotFound, "Job not found")
	}
}

func (s *apiServer) serveSnapshot(w http.ResponseWriter, r *http.Request, id string) {
	snap, err := s.manager.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromSnapshot(snap)})
}

func (s *apiServer) serveArtifact(w http.ResponseWriter, r *http.Request, id, kind string) {
	artifact, err := s.manager.Artifact(r.Context(), id, kind)
	if errors.Is(err, jobs.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, "Artifact not available")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !artifact.Inline {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	}
	http.ServeFile(w, r, artifact.Path)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Warn("encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, api.ErrorResponse{Detail: detail})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/jo-hoe/videogreeter/internal/common"
	"github.com/jo-hoe/videogreeter/internal/config"
	"github.com/jo-hoe/videogreeter/internal/intake"
	"github.com/jo-hoe/videogreeter/internal/jobs"
	"github.com/jo-hoe/videogreeter/internal/util"
)

// Enqueuer hands a created job to background execution.
type Enqueuer interface {
	Enqueue(item jobs.WorkItem) error
}

type Service struct {
	Log        *slog.Logger
	Cfg        *config.Config
	Store      jobs.Store
	Dispatcher Enqueuer

	// Artifacts serves locally stored speech artifacts under /audio/. Nil when
	// artifacts live elsewhere.
	Artifacts http.Handler
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc(http.MethodPost+" "+common.PathGenerateVideo, svc.withCommon(svc.handleGenerateVideo))
	mux.HandleFunc(http.MethodGet+" "+common.PathVideoStatus+"/{id}", svc.withCommon(svc.handleVideoStatus))

	// The lip-sync provider fetches speech artifacts without credentials.
	if svc.Artifacts != nil {
		mux.Handle(http.MethodGet+" "+common.PathAudio+"/", svc.Artifacts)
	}

	s := &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(mux, svc.Log), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
	return s
}

func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Enforce API key if configured
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		// Enforce max body size
		max := safeInt64(svc.Cfg.Server.MaxBodySize)
		if max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

type generateResponse struct {
	ID        string      `json:"id"`
	Status    jobs.Status `json:"status"`
	StatusURL string      `json:"statusUrl"`
}

// errorResponse carries the job id and status url when the job was
// persisted before the request failed.
type errorResponse struct {
	Error     string      `json:"error"`
	Details   []string    `json:"details,omitempty"`
	ID        string      `json:"id,omitempty"`
	Status    jobs.Status `json:"status,omitempty"`
	StatusURL string      `json:"statusUrl,omitempty"`
}

func (svc *Service) handleGenerateVideo(w http.ResponseWriter, r *http.Request) {
	var in intake.Request
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	req, err := intake.Validate(in)
	if err != nil {
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: verr.Problems})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := jobs.Job{
		ID:        util.NewID(),
		Name:      req.Name,
		Phone:     req.Phone,
		Country:   req.Country,
		Status:    jobs.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := svc.Store.CreateJob(r.Context(), &job); err != nil {
		svc.logger().Error("persist job", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	svc.logger().Info("job created", "job_id", job.ID)

	if err := svc.Dispatcher.Enqueue(jobs.WorkItem{Job: job}); err != nil {
		svc.logger().Warn("dispatch rejected", "job_id", job.ID, "error", err)
		if saveErr := svc.Store.SaveError(r.Context(), job.ID, "dispatch rejected: "+err.Error()); saveErr != nil {
			svc.logger().Error("persist dispatch failure", "job_id", job.ID, "error", saveErr)
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     "service busy, try again later",
			ID:        job.ID,
			Status:    jobs.StatusFailed,
			StatusURL: path.Join(common.PathVideoStatus, job.ID),
		})
		return
	}

	writeJSON(w, http.StatusAccepted, generateResponse{
		ID:        job.ID,
		Status:    jobs.StatusQueued,
		StatusURL: path.Join(common.PathVideoStatus, job.ID),
	})
}

func (svc *Service) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := jobs.Lookup(r.Context(), svc.Store, id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		svc.logger().Error("lookup job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (svc *Service) logger() *slog.Logger {
	if svc.Log == nil {
		return discardLogger()
	}
	return svc.Log
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = discardLogger()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = discardLogger()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

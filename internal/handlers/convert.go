package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/VGachet/tapedit-server/internal/cleanup"
	"github.com/VGachet/tapedit-server/internal/delivery"
	"github.com/VGachet/tapedit-server/internal/jobs"
	"github.com/VGachet/tapedit-server/internal/metrics"
	"github.com/VGachet/tapedit-server/internal/models"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// statusClientClosedRequest marks requests abandoned by the client, as nginx does.
const statusClientClosedRequest = 499

var (
	errUploadTooLarge = errors.New("upload exceeds the configured size limit")
	errMissingVideo   = errors.New("no video file provided")
)

// convert accepts the upload, runs the engine and streams the result back on
// the same response. Every temp file of the job is owned by scope and
// released when the handler returns, panics included.
func (a *App) convert(w http.ResponseWriter, r *http.Request) {
	a.inflight.Add(1)
	defer a.inflight.Done()

	logger := a.logger.With("request_id", middleware.GetReqID(r.Context()))

	if r.ContentLength > a.maxUploadBytes+multipartMemory {
		a.respondError(w, http.StatusRequestEntityTooLarge, "File too large", errUploadTooLarge.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.respondError(w, http.StatusRequestEntityTooLarge, "File too large", errUploadTooLarge.Error())
			return
		}
		logger.Warn("invalid multipart upload", "error", err)
		a.respondError(w, http.StatusBadRequest, "Invalid upload", err.Error())
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.Warn("failed to remove multipart temp files", "error", err)
		}
	}()

	video, videoHeader, err := r.FormFile("video")
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "No video file provided", errMissingVideo.Error())
		return
	}
	defer video.Close()

	opts, err := parseOptions(r)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid options", err.Error())
		return
	}

	jobID, err := parseJobID(r.FormValue("jobId"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid job id", err.Error())
		return
	}
	logger = logger.With("job_id", jobID)

	if err := os.MkdirAll(a.tempDir, 0o755); err != nil {
		logger.Error("failed to ensure temp dir", "error", err)
		a.respondError(w, http.StatusInternalServerError, "Conversion failed", "temp storage unavailable")
		return
	}

	scope := cleanup.NewScope(logger)
	defer scope.Release()

	sub := jobs.Submission{
		ID:         jobID,
		VideoPath:  a.tempPath(jobID, "video"),
		OutputPath: a.tempPath(jobID, "output.mp4"),
		Options:    opts,
	}

	if err := saveUpload(video, sub.VideoPath, scope); err != nil {
		a.handleSaveError(w, logger, err)
		return
	}
	scope.Add(sub.OutputPath)

	audio, _, err := r.FormFile("audio")
	switch {
	case err == nil:
		defer audio.Close()
		sub.AudioPath = a.tempPath(jobID, "audio")
		if err := saveUpload(audio, sub.AudioPath, scope); err != nil {
			a.handleSaveError(w, logger, err)
			return
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		a.respondError(w, http.StatusBadRequest, "Invalid audio upload", err.Error())
		return
	}

	logger.Info("upload saved", "video", videoHeader.Filename, "video_bytes", videoHeader.Size, "audio", sub.AudioPath != "")

	if err := a.jobs.Process(r.Context(), sub); err != nil {
		a.handleProcessError(w, r, err)
		return
	}
	defer a.jobs.Finish(jobID)

	w.Header().Set("X-Job-ID", jobID)
	n, err := delivery.Send(w, sub.OutputPath, opts.Filename)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("incomplete").Inc()
		var de *delivery.DeliveryError
		if errors.As(err, &de) && de.HeadersSent {
			logger.Warn("delivery interrupted", "bytes_sent", n, "error", err)
			return
		}
		logger.Error("delivery failed", "error", err)
		a.respondError(w, http.StatusInternalServerError, "Failed to send converted file", err.Error())
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("complete").Inc()
	logger.Info("delivery completed", "bytes_sent", n)
}

func (a *App) handleProcessError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrBusy):
		a.respondError(w, http.StatusServiceUnavailable, "Server busy", err.Error())
	case errors.Is(err, jobs.ErrDuplicateID):
		a.respondError(w, http.StatusConflict, "Job id already in use", err.Error())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// The client left while queued. The status only reaches logs and metrics.
		a.logger.Info("client gave up before conversion started", "request_id", middleware.GetReqID(r.Context()))
		w.WriteHeader(statusClientClosedRequest)
	default:
		if !jobs.IsEngineFailure(err) {
			a.logger.Error("conversion aborted", "request_id", middleware.GetReqID(r.Context()), "error", err)
		}
		a.respondError(w, http.StatusInternalServerError, "Conversion failed", err.Error())
	}
}

func (a *App) handleSaveError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, fs.ErrExist) {
		a.respondError(w, http.StatusConflict, "Job id already in use", jobs.ErrDuplicateID.Error())
		return
	}
	logger.Error("failed to persist upload", "error", err)
	a.respondError(w, http.StatusInternalServerError, "Conversion failed", "could not store upload")
}

// tempPath names a job file. Names carry no client-controlled part, so the
// exclusive create of the video file doubles as a lock on the job id.
func (a *App) tempPath(jobID, role string) string {
	return filepath.Join(a.tempDir, jobID+"_"+role)
}

func parseOptions(r *http.Request) (models.Options, error) {
	opts := models.Options{
		Quality:  models.ParseQuality(r.FormValue("quality")),
		FPS:      models.DefaultFPS,
		Filename: strings.TrimSpace(r.FormValue("filename")),
	}
	if v := strings.TrimSpace(r.FormValue("fps")); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil || fps <= 0 || fps > 240 {
			return opts, fmt.Errorf("fps must be an integer between 1 and 240, got %q", v)
		}
		opts.FPS = fps
	}
	if opts.Filename == "" {
		opts.Filename = models.DefaultFilename
	}
	return opts, nil
}

func parseJobID(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return "", fmt.Errorf("jobId must be a UUID: %w", err)
	}
	return id.String(), nil
}

// saveUpload copies src into a new file at dst. dst joins scope only after
// this request has created it.
func saveUpload(src multipart.File, dst string, scope *cleanup.Scope) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	scope.Add(dst)
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VGachet/tapedit-server/internal/metrics"
	"github.com/VGachet/tapedit-server/internal/models"
	"github.com/VGachet/tapedit-server/internal/transcoder"
)

// Engine starts transcoding runs.
type Engine interface {
	Start(ctx context.Context, req transcoder.Request, cb transcoder.ProgressCallback) (*transcoder.Run, error)
}

// Submission is a conversion whose inputs are already on disk.
type Submission struct {
	ID         string
	VideoPath  string
	AudioPath  string
	OutputPath string
	Options    models.Options
}

// Service orchestrates a conversion from admission to a terminal registry
// state. File cleanup is owned by the caller's cleanup.Scope.
type Service struct {
	logger      *slog.Logger
	registry    *Registry
	limiter     *Limiter
	engine      Engine
	completeTTL time.Duration
}

func NewService(logger *slog.Logger, registry *Registry, limiter *Limiter, engine Engine, completeTTL time.Duration) *Service {
	return &Service{
		logger:      logger,
		registry:    registry,
		limiter:     limiter,
		engine:      engine,
		completeTTL: completeTTL,
	}
}

// Registry exposes the job store for the status-query path.
func (s *Service) Registry() *Registry { return s.registry }

// Process runs the engine for sub and blocks until it exits. On success the
// job is left at 100% complete and the caller must call Finish once the
// artifact has been delivered. On any failure the job is already removed.
//
// Cancelling ctx only aborts waiting for an engine slot; a spawned run
// proceeds to completion.
func (s *Service) Process(ctx context.Context, sub Submission) error {
	if err := s.registry.Create(sub.ID); err != nil {
		return err
	}
	s.registry.Modify(sub.ID, func(j *models.Job) {
		j.VideoPath = sub.VideoPath
		j.AudioPath = sub.AudioPath
		j.OutputPath = sub.OutputPath
		j.Options = sub.Options
	})

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		s.registry.Remove(sub.ID)
		metrics.JobsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	defer release()

	req := transcoder.Request{
		JobID:      sub.ID,
		VideoPath:  sub.VideoPath,
		AudioPath:  sub.AudioPath,
		OutputPath: sub.OutputPath,
		Options:    sub.Options,
	}

	start := time.Now()
	run, err := s.engine.Start(context.WithoutCancel(ctx), req, func(pct float64) {
		s.registry.Update(sub.ID, pct, models.StatusProcessing)
	})
	if err != nil {
		// The run never meaningfully started, so there is no state worth querying.
		s.registry.Remove(sub.ID)
		metrics.JobsTotal.WithLabelValues("spawn_failed").Inc()
		s.logger.Error("engine spawn failed", "job_id", sub.ID, "error", err)
		return err
	}

	metrics.JobsInProgress.Inc()
	s.logger.Info("conversion started", "job_id", sub.ID, "quality", sub.Options.Quality, "fps", sub.Options.FPS, "audio", sub.AudioPath != "")

	err = run.Wait()
	metrics.JobsInProgress.Dec()
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.registry.Remove(sub.ID)
		metrics.JobsTotal.WithLabelValues("engine_failed").Inc()
		s.logger.Error("conversion failed", "job_id", sub.ID, "error", err)
		return fmt.Errorf("conversion %s: %w", sub.ID, err)
	}

	s.registry.Modify(sub.ID, func(j *models.Job) {
		j.Progress = 100
		j.Status = models.StatusComplete
		if d, ok := run.Duration(); ok {
			j.DurationSeconds = &d
		}
	})
	metrics.JobsTotal.WithLabelValues("complete").Inc()
	s.logger.Info("conversion completed", "job_id", sub.ID, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Finish ends a delivered job, keeping its complete record for the configured grace period.
func (s *Service) Finish(id string) {
	s.registry.RemoveAfter(id, s.completeTTL)
}

// IsEngineFailure reports whether err came from the engine rather than admission.
func IsEngineFailure(err error) bool {
	var spawnErr *transcoder.SpawnError
	var exitErr *transcoder.ExitError
	return errors.As(err, &spawnErr) || errors.As(err, &exitErr)
}

package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VGachet/tapedit-server/internal/models"
	"github.com/VGachet/tapedit-server/internal/transcoder"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeEngine(t *testing.T, body string) *transcoder.Service {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return transcoder.NewService(testLogger(), path, time.Minute)
}

func newTestService(engine Engine, slots int) *Service {
	return NewService(testLogger(), NewRegistry(), NewLimiter(slots, 0), engine, 0)
}

func TestProcessSuccessLeavesCompleteRecord(t *testing.T) {
	engine := fakeEngine(t, `echo "Duration: 00:00:04.00" >&2
echo "out_time_us=1000000"
echo "out_time_us=3000000"
echo "progress=end"
exit 0`)
	svc := newTestService(engine, 2)

	err := svc.Process(context.Background(), Submission{
		ID:         "job-ok",
		VideoPath:  "in.mp4",
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
		Options:    models.Options{Quality: models.QualityHigh, FPS: 30},
	})
	require.NoError(t, err)

	job, err := svc.Registry().Get("job-ok")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, job.Status)
	assert.InDelta(t, 100.0, job.Progress, 1e-9)
	require.NotNil(t, job.DurationSeconds)
	assert.InDelta(t, 4.0, *job.DurationSeconds, 1e-9)

	svc.Finish("job-ok")
	_, err = svc.Registry().Get("job-ok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessProgressIsMonotonicAndCapped(t *testing.T) {
	engine := fakeEngine(t, `echo "Duration: 00:00:10.00" >&2
sleep 0.2
for us in 1000000 4000000 2000000 9000000 15000000; do
  echo "out_time_us=$us"
  sleep 0.05
done
exit 0`)
	svc := newTestService(engine, 1)

	var mu sync.Mutex
	var observed []models.Job
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			job, err := svc.Registry().Get("job-mono")
			if err == nil {
				mu.Lock()
				observed = append(observed, job)
				mu.Unlock()
				if job.Status == models.StatusComplete {
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	require.NoError(t, svc.Process(context.Background(), Submission{ID: "job-mono", VideoPath: "in", OutputPath: "out"}))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller never saw completion")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, job := range observed {
		if job.Status == models.StatusProcessing {
			assert.LessOrEqual(t, job.Progress, 99.0)
		}
		if i > 0 {
			assert.GreaterOrEqual(t, job.Progress, observed[i-1].Progress)
		}
	}
	last := observed[len(observed)-1]
	assert.Equal(t, models.StatusComplete, last.Status)
	assert.InDelta(t, 100.0, last.Progress, 1e-9)
}

func TestProcessEngineFailureRemovesJob(t *testing.T) {
	engine := fakeEngine(t, `echo "boom" >&2
exit 1`)
	svc := newTestService(engine, 1)

	err := svc.Process(context.Background(), Submission{ID: "job-fail", VideoPath: "in", OutputPath: "out"})
	var exitErr *transcoder.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.True(t, IsEngineFailure(err))

	_, err = svc.Registry().Get("job-fail")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessSpawnFailureRemovesJob(t *testing.T) {
	engine := transcoder.NewService(testLogger(), filepath.Join(t.TempDir(), "missing"), time.Minute)
	svc := newTestService(engine, 1)

	err := svc.Process(context.Background(), Submission{ID: "job-spawn", VideoPath: "in", OutputPath: "out"})
	var spawnErr *transcoder.SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.True(t, IsEngineFailure(err))

	_, err = svc.Registry().Get("job-spawn")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessRejectsWhenBusy(t *testing.T) {
	engine := fakeEngine(t, `sleep 1
exit 0`)
	svc := newTestService(engine, 1)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- svc.Process(context.Background(), Submission{ID: "job-1", VideoPath: "in", OutputPath: "out"})
	}()

	require.Eventually(t, func() bool { return engine.Running() == 1 }, 2*time.Second, 10*time.Millisecond)

	err := svc.Process(context.Background(), Submission{ID: "job-2", VideoPath: "in", OutputPath: "out"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.False(t, IsEngineFailure(err))
	_, err = svc.Registry().Get("job-2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, <-firstDone)
}

func TestProcessRejectsDuplicateID(t *testing.T) {
	svc := newTestService(fakeEngine(t, "exit 0"), 1)
	require.NoError(t, svc.Registry().Create("dup"))

	err := svc.Process(context.Background(), Submission{ID: "dup"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestProcessSurvivesCallerCancellation(t *testing.T) {
	engine := fakeEngine(t, `sleep 0.3
exit 0`)
	svc := newTestService(engine, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, svc.Process(ctx, Submission{ID: "job-detached", VideoPath: "in", OutputPath: "out"}))
	job, err := svc.Registry().Get("job-detached")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, job.Status)
}

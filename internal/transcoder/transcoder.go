package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VGachet/tapedit-server/internal/models"
	"github.com/VGachet/tapedit-server/internal/progress"
)

const (
	audioSampleRate = "48000"
	stderrTailLines = 5
	maxLineBytes    = 1024 * 1024
)

// ProgressCallback receives each advance of the normalized percentage.
type ProgressCallback func(percent float64)

// Request describes one engine run.
type Request struct {
	JobID      string
	VideoPath  string
	AudioPath  string // optional
	OutputPath string
	Options    models.Options
}

// Preset is one row of the quality table.
type Preset struct {
	VideoKbps int
	AudioKbps int
	Speed     string
}

var presets = map[models.Quality]Preset{
	models.QualityLow:    {VideoKbps: 2000, AudioKbps: 128, Speed: "veryfast"},
	models.QualityMedium: {VideoKbps: 5000, AudioKbps: 192, Speed: "medium"},
	models.QualityHigh:   {VideoKbps: 10000, AudioKbps: 256, Speed: "slow"},
}

// PresetFor returns the encoder preset for q; unknown values use high.
func PresetFor(q models.Quality) Preset {
	if p, ok := presets[q]; ok {
		return p
	}
	return presets[models.QualityHigh]
}

// BuildArgs returns the engine argument vector for req.
func BuildArgs(req Request) []string {
	preset := PresetFor(req.Options.Quality)
	fps := req.Options.FPS
	if fps <= 0 {
		fps = models.DefaultFPS
	}

	args := []string{"-y", "-i", req.VideoPath}
	if req.AudioPath != "" {
		args = append(args, "-i", req.AudioPath, "-map", "0:v:0", "-map", "1:a:0")
	}

	args = append(args,
		"-c:v", "libx264",
		"-profile:v", "high",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-b:v", fmt.Sprintf("%dk", preset.VideoKbps),
		"-preset", preset.Speed,
		"-r", strconv.Itoa(fps),
	)

	if req.AudioPath != "" {
		args = append(args,
			"-c:a", "aac",
			"-b:a", fmt.Sprintf("%dk", preset.AudioKbps),
			"-ar", audioSampleRate,
			"-shortest",
		)
	} else {
		args = append(args, "-an")
	}

	return append(args,
		"-progress", "pipe:1",
		"-nostats",
		"-f", "mp4",
		req.OutputPath,
	)
}

// SpawnError means the engine process could not be started at all.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string { return "failed to start engine: " + e.Err.Error() }
func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the engine ran but did not exit cleanly.
type ExitError struct {
	Code     int
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.TimedOut {
		return "engine run exceeded its time limit"
	}
	if e.Stderr != "" {
		return fmt.Sprintf("engine exited with code %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("engine exited with code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Service spawns and tracks engine processes.
type Service struct {
	logger  *slog.Logger
	binary  string
	parser  progress.LineParser
	timeout time.Duration

	mu        sync.Mutex
	processes map[string]*exec.Cmd
}

func NewService(logger *slog.Logger, binary string, timeout time.Duration) *Service {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Service{
		logger:    logger,
		binary:    binary,
		parser:    progress.FFmpegParser{},
		timeout:   timeout,
		processes: make(map[string]*exec.Cmd),
	}
}

// Available reports whether the engine binary can be found.
func (s *Service) Available() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Run is an in-flight engine execution.
type Run struct {
	done    chan error
	tracker *progress.Tracker
}

// Done delivers the outcome exactly once: nil on exit code 0, otherwise *ExitError.
func (r *Run) Done() <-chan error { return r.done }

// Wait blocks until the run completes.
func (r *Run) Wait() error { return <-r.done }

// Duration returns the total duration the engine announced, if any.
func (r *Run) Duration() (float64, bool) { return r.tracker.Duration() }

// Start spawns the engine and returns without waiting for it. A failure to
// spawn is returned synchronously as *SpawnError.
func (s *Service) Start(ctx context.Context, req Request, cb ProgressCallback) (*Run, error) {
	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(ctx, s.binary, BuildArgs(req)...)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &SpawnError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, &SpawnError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &SpawnError{Err: err}
	}

	s.track(req.JobID, cmd)
	s.logger.Debug("engine started", "job_id", req.JobID, "pid", cmd.Process.Pid)

	run := &Run{
		done:    make(chan error, 1),
		tracker: progress.NewTracker(s.parser),
	}

	go func() {
		defer cancel()
		defer s.untrack(req.JobID)

		var wg sync.WaitGroup
		tail := newLineTail(stderrTailLines)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scanLines(stderr, func(line string) {
				run.tracker.ObserveDiagnostic(line)
				tail.add(line)
			})
		}()

		scanLines(stdout, func(line string) {
			if pct, ok := run.tracker.ObserveProgress(line); ok && cb != nil {
				cb(pct)
			}
		})
		wg.Wait()

		err := s.exitResult(ctx, req.JobID, cmd.Wait(), tail.String())
		if err == nil {
			s.logger.Debug("engine finished", "job_id", req.JobID, "reported_end", run.tracker.Ended())
		}
		run.done <- err
	}()

	return run, nil
}

func (s *Service) exitResult(ctx context.Context, jobID string, err error, stderr string) error {
	if err == nil {
		return nil
	}

	exitErr := &ExitError{Code: -1, Stderr: stderr, Err: err}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		exitErr.Code = ee.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		exitErr.TimedOut = true
	}
	s.logger.Warn("engine failed", "job_id", jobID, "exit_code", exitErr.Code, "timed_out", exitErr.TimedOut, "stderr", stderr)
	return exitErr
}

// Shutdown kills every engine process still running.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for jobID, cmd := range s.processes {
		if cmd.Process == nil {
			continue
		}
		s.logger.Info("killing engine process", "job_id", jobID, "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Warn("failed to kill engine process", "job_id", jobID, "error", err)
		}
	}
}

// Running returns the number of tracked engine processes.
func (s *Service) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}

func (s *Service) track(jobID string, cmd *exec.Cmd) {
	s.mu.Lock()
	s.processes[jobID] = cmd
	s.mu.Unlock()
}

func (s *Service) untrack(jobID string) {
	s.mu.Lock()
	delete(s.processes, jobID)
	s.mu.Unlock()
}

// scanLines feeds each line to fn and drains whatever is left so the child
// never blocks on a full pipe.
func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			fn(line)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

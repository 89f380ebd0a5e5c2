// Package progress turns the transcoding engine's text output into
// normalized completion percentages.
//
// The engine-specific line format lives behind LineParser so another engine
// can be substituted by supplying a different parser.
package progress

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// MaxRunningPercent is the ceiling reported while a run is still in flight.
// Only a confirmed successful exit may report 100.
const MaxRunningPercent = 99.0

// Kind classifies a parsed signal.
type Kind int

const (
	KindDuration Kind = iota + 1
	KindElapsed
	KindEnd
)

// Signal is one piece of information extracted from an output line.
type Signal struct {
	Kind    Kind
	Seconds float64 // total duration, KindDuration only
	Micros  int64   // elapsed output time, KindElapsed only
}

// LineParser converts a single raw output line into a signal.
type LineParser interface {
	ParseLine(line string) (Signal, bool)
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d+)`)

// FFmpegParser understands ffmpeg's stderr banner and its -progress key=value stream.
type FFmpegParser struct{}

func (FFmpegParser) ParseLine(line string) (Signal, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Signal{}, false
	}

	if m := durationRe.FindStringSubmatch(line); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		frac, err := strconv.ParseFloat("0."+m[4], 64)
		if err != nil {
			return Signal{}, false
		}
		total := float64(hours*3600+minutes*60+seconds) + frac
		return Signal{Kind: KindDuration, Seconds: total}, true
	}

	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return Signal{}, false
	}
	switch key {
	// out_time_ms carries microseconds as well; ffmpeg never fixed the name.
	case "out_time_us", "out_time_ms":
		micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || micros < 0 {
			return Signal{}, false
		}
		return Signal{Kind: KindElapsed, Micros: micros}, true
	case "progress":
		if strings.TrimSpace(value) == "end" {
			return Signal{Kind: KindEnd}, true
		}
	}
	return Signal{}, false
}

// Percent computes min(elapsed/total*100, 99). It reports false when the
// total duration is unknown.
func Percent(elapsedMicros int64, totalSeconds float64) (float64, bool) {
	if totalSeconds <= 0 {
		return 0, false
	}
	if elapsedMicros < 0 {
		elapsedMicros = 0
	}
	pct := float64(elapsedMicros) / 1_000_000.0 / totalSeconds * 100
	if pct > MaxRunningPercent {
		pct = MaxRunningPercent
	}
	return pct, true
}

// Tracker holds per-run parser state. The diagnostic and progress streams are
// read from different goroutines, so all state is guarded.
type Tracker struct {
	parser LineParser

	mu       sync.Mutex
	duration float64
	known    bool
	last     float64
	ended    bool
}

func NewTracker(parser LineParser) *Tracker {
	if parser == nil {
		parser = FFmpegParser{}
	}
	return &Tracker{parser: parser}
}

// ObserveDiagnostic scans a diagnostic line for the total duration. The first
// match wins for the lifetime of the run.
func (t *Tracker) ObserveDiagnostic(line string) {
	sig, ok := t.parser.ParseLine(line)
	if !ok || sig.Kind != KindDuration || sig.Seconds <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known {
		t.duration = sig.Seconds
		t.known = true
	}
}

// ObserveProgress scans a progress line and returns a new percentage when it
// advances the previously reported value. An end marker is recorded but never
// reported as a percentage.
func (t *Tracker) ObserveProgress(line string) (float64, bool) {
	sig, ok := t.parser.ParseLine(line)
	if !ok {
		return 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sig.Kind == KindEnd {
		t.ended = true
		return 0, false
	}
	if sig.Kind != KindElapsed || !t.known {
		return 0, false
	}
	pct, ok := Percent(sig.Micros, t.duration)
	if !ok || pct <= t.last {
		return 0, false
	}
	t.last = pct
	return pct, true
}

// Duration returns the cached total duration, if one was seen.
func (t *Tracker) Duration() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration, t.known
}

// Ended reports whether the engine announced the end of its progress stream.
func (t *Tracker) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

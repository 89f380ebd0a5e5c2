package models

import (
	"strings"
	"time"
)

// JobStatus represents the current state of a conversion job.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusFailed     JobStatus = "failed"
)

// Quality selects one of the fixed encoder presets.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

const (
	DefaultFPS      = 30
	DefaultFilename = "export.mp4"
)

// ParseQuality normalizes client input. Unknown values fall back to high.
func ParseQuality(v string) Quality {
	switch q := Quality(strings.ToLower(strings.TrimSpace(v))); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q
	default:
		return QualityHigh
	}
}

// Options are the client supplied parameters of a conversion.
type Options struct {
	Quality  Quality `json:"quality"`
	FPS      int     `json:"fps"`
	Filename string  `json:"filename"`
}

// Job stores runtime state for one conversion request.
type Job struct {
	ID              string    `json:"id"`
	Status          JobStatus `json:"status"`
	Progress        float64   `json:"progress"`
	VideoPath       string    `json:"-"`
	AudioPath       string    `json:"-"`
	OutputPath      string    `json:"-"`
	Options         Options   `json:"options"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProgressEvent is sent to clients over HTTP polling and WebSocket.
type ProgressEvent struct {
	ID       string    `json:"id,omitempty"`
	Status   JobStatus `json:"status"`
	Progress float64   `json:"progress"`
}

// Event builds the public view of a job.
func (j Job) Event() ProgressEvent {
	return ProgressEvent{ID: j.ID, Status: j.Status, Progress: j.Progress}
}

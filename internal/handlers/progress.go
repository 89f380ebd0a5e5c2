package handlers

import (
	"net/http"
	"time"

	"github.com/VGachet/tapedit-server/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

type progressResponse struct {
	Progress float64          `json:"progress"`
	Status   models.JobStatus `json:"status"`
}

func (a *App) progress(w http.ResponseWriter, r *http.Request) {
	job, err := a.jobs.Registry().Get(chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, http.StatusNotFound, "Conversion not found", "")
		return
	}
	a.respondJSON(w, http.StatusOK, progressResponse{Progress: job.Progress, Status: job.Status})
}

// progressWS pushes progress events until the job completes or disappears.
// A job removed without completing is reported once as failed.
func (a *App) progressWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	events, unsubscribe, err := a.jobs.Registry().Watch(jobID)
	if err != nil {
		a.respondError(w, http.StatusNotFound, "Conversion not found", "")
		return
	}
	defer unsubscribe()

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case evt, ok := <-events:
			if !ok {
				a.writeEvent(conn, models.ProgressEvent{ID: jobID, Status: models.StatusFailed})
				a.closeWS(conn)
				return
			}
			if err := a.writeEvent(conn, evt); err != nil {
				a.logger.Debug("websocket write failed", "job_id", jobID, "error", err)
				return
			}
			if evt.Status == models.StatusComplete {
				a.closeWS(conn)
				return
			}
		}
	}
}

func (a *App) writeEvent(conn *websocket.Conn, evt models.ProgressEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(evt)
}

func (a *App) closeWS(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

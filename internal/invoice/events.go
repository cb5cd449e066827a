package invoice

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// streamMessage is one websocket frame of a batch event stream
type streamMessage struct {
	Type  string       `json:"type"`
	Job   *JobSnapshot `json:"job,omitempty"`
	Event *JobEvent    `json:"event,omitempty"`
}

// handleBatchEvents streams a batch's progress over a websocket. The first
// frame is a snapshot, then one frame per event, then a final "done" snapshot.
func (s *Server) handleBatchEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.service.GetJob(r.PathValue("id"))
	if !ok {
		jsonError(w, "Batch not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "job_id", job.ID, "error", err)
		return
	}
	defer conn.Close()

	// subscribe before the snapshot so no event is missed
	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	// the client sends nothing; reading detects when it goes away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := job.Snapshot()
	if err := s.writeFrame(conn, streamMessage{Type: "snapshot", Job: &snap}); err != nil {
		return
	}

	for {
		select {
		case <-gone:
			return
		case e, ok := <-events:
			if !ok {
				<-job.Done()
				final := job.Snapshot()
				if err := s.writeFrame(conn, streamMessage{Type: "done", Job: &final}); err != nil {
					return
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished"),
					time.Now().Add(writeWait))
				return
			}
			if err := s.writeFrame(conn, streamMessage{Type: "event", Event: &e}); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, msg streamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("Websocket write failed", "error", err)
		return err
	}
	return nil
}

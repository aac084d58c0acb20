package http

import (
	"net/http"

	"github.com/google/uuid"

	"stt-relay-service/internal/models"
	"stt-relay-service/internal/observability/metrics"
)

// monitorMessage is one frame on the monitor socket. The first two frames
// identify the monitor and the call; every poll tick after that carries the
// window's transcripts, empty ticks included.
type monitorMessage struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// handleMonitor upgrades a monitor connection and streams stored transcripts
// for the requested call until the monitor disconnects.
//
// Query parameters: callId (required).
func (h *handlers) handleMonitor(w http.ResponseWriter, r *http.Request) {
	callId := r.URL.Query().Get("callId")
	if callId == "" {
		http.Error(w, "callId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.app.Logger.Warn().Err(err).Msg("Monitor upgrade failed")
		return
	}
	writer := &wsWriter{conn: conn}
	callerId := uuid.NewString()

	metrics.DefaultMetrics.RecordMonitorConnect()
	defer metrics.DefaultMetrics.RecordMonitorDisconnect()

	log := h.app.Logger.With().
		Str("callId", callId).
		Str("callerId", callerId).
		Logger()
	log.Info().Msg("Monitor connected")

	if err := writer.writeJSON(monitorMessage{Type: "callerId", Value: callerId}); err != nil {
		_ = conn.Close()
		return
	}
	if err := writer.writeJSON(monitorMessage{Type: "callId", Value: callId}); err != nil {
		_ = conn.Close()
		return
	}

	sub := h.app.Poller.Subscribe(r.Context(), callId, 0, func(segments []models.Segment) {
		if segments == nil {
			segments = []models.Segment{}
		}
		if err := writer.writeJSON(monitorMessage{Type: "transcripts", Value: segments}); err != nil {
			log.Debug().Err(err).Msg("Monitor write failed")
			_ = conn.Close()
		}
	})
	defer sub.Unsubscribe()

	// Block until the monitor goes away; inbound frames are not part of the
	// protocol and are discarded.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Info().Msg("Monitor disconnected")
			return
		}
	}
}

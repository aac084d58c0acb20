package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stt-relay-service/internal/models"
	"stt-relay-service/internal/service/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Callers connect from browsers and softphones on other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsWriter serializes writes to one websocket connection. The emitter and
// teardown paths both write; gorilla permits a single concurrent writer.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *wsWriter) writeClose(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason))
}

// handleTranscribe upgrades a caller connection and relays its audio for the
// rest of the call. Binary frames are little-endian float32 samples at the
// rate named in the query; every transcript segment for the session is sent
// back as JSON.
//
// Query parameters: callId (generated when absent), username, sampleRate,
// language, region, all optional.
func (h *handlers) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	callId := q.Get("callId")
	if callId == "" {
		callId = uuid.NewString()
	}
	speaker := q.Get("username")
	if speaker == "" {
		speaker = q.Get("speakerName")
	}
	language := q.Get("language")
	region := q.Get("region")

	// Browsers capture at 44.1 kHz unless told otherwise.
	sampleRate := 44100
	if v := q.Get("sampleRate"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid sampleRate", http.StatusBadRequest)
			return
		}
		sampleRate = parsed
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.app.Logger.Warn().Err(err).Msg("Transcribe upgrade failed")
		return
	}
	writer := &wsWriter{conn: conn}
	callerId := uuid.NewString()

	session := relay.NewSession(relay.Config{
		CallId:             callId,
		CallerId:           callerId,
		SpeakerName:        speaker,
		InputSampleRateHz:  sampleRate,
		TargetSampleRateHz: h.app.Cfg.Transcribe.SampleRateHz,
		IdleTimeout:        h.app.Cfg.Relay.IdleTimeout,
		ConnectTimeout:     h.app.Cfg.Relay.ConnectTimeout,
	}, h.app.NewAdapter(language, region), h.app.Store, h.app.Publisher)

	session.OnMessage(func(seg models.Segment) {
		if err := writer.writeJSON(seg); err != nil {
			h.app.Logger.Debug().Err(err).Str("callId", callId).Msg("Caller write failed")
		}
	})
	session.OnSessionError(func(err error) {
		msg := map[string]string{"type": "error", "value": err.Error()}
		if werr := writer.writeJSON(msg); werr != nil {
			h.app.Logger.Debug().Err(werr).Str("callId", callId).Msg("Caller error write failed")
		}
	})
	session.SetOnClose(func() {
		writer.writeClose(websocket.CloseNormalClosure, "session closed")
		_ = conn.Close()
	})

	if err := session.Start(r.Context()); err != nil {
		h.app.Logger.Error().Err(err).Str("callId", callId).Msg("Failed to start relay session")
		writer.writeClose(websocket.CloseInternalServerErr, "upstream unavailable")
		_ = conn.Close()
		return
	}

	// Hand the session identity back so the caller can share it with
	// monitors.
	_ = writer.writeJSON(map[string]string{"type": "callId", "value": callId})

	h.readAudio(conn, session, callId)
}

func (h *handlers) readAudio(conn *websocket.Conn, session *relay.Session, callId string) {
	defer session.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			h.app.Logger.Debug().Err(err).Str("callId", callId).Msg("Caller socket closed")
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if err := session.ForwardAudio(context.Background(), data); err != nil {
			return
		}
	}
}

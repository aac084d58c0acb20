package http

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stt-relay-service/internal/app"
	"stt-relay-service/internal/config"
	"stt-relay-service/internal/models"
	"stt-relay-service/internal/store"
)

func testApplication(t *testing.T) *app.Application {
	t.Helper()
	cfg := &config.Config{}
	cfg.Service.Port = "0"
	cfg.AWS.Region = "us-east-1"
	cfg.Transcribe.Provider = "mock"
	cfg.Transcribe.LanguageCode = "en-US"
	cfg.Transcribe.SampleRateHz = 16000
	cfg.Transcribe.PresignExpirySeconds = 15
	cfg.Transcribe.PartialStability = "medium"
	cfg.Relay.IdleTimeout = 5 * time.Second
	cfg.Relay.ConnectTimeout = time.Second
	cfg.Relay.AudioQueueSize = 16
	cfg.Store.Driver = "memory"
	cfg.Poller.IntervalSeconds = 1
	cfg.Observability.LogLevel = "error"

	application, err := app.New(cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(application.Shutdown)
	return application
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", rawURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
}

func audioFrame(n int) []byte {
	buf := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(0.1))
	}
	return buf
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewRouter(testApplication(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stt/healthcheck")
	if err != nil {
		t.Fatalf("GET healthcheck: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMonitorRequiresCallId(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewRouter(testApplication(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stt/connect")
	if err != nil {
		t.Fatalf("GET connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTranscribeRejectsBadSampleRate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(NewRouter(testApplication(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stt/transcribe?sampleRate=banana")
	if err != nil {
		t.Fatalf("GET transcribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTranscribeStreamsSegmentsBack(t *testing.T) {
	t.Parallel()

	application := testApplication(t)
	srv := httptest.NewServer(NewRouter(application))
	defer srv.Close()

	conn := dial(t, wsURL(srv, "/api/stt/transcribe?callId=call-ws-1&username=alice&sampleRate=16000"))

	var hello map[string]string
	readJSON(t, conn, &hello)
	if hello["type"] != "callId" || hello["value"] != "call-ws-1" {
		t.Fatalf("first frame = %v, want callId announcement", hello)
	}

	// Enough frames to run any scripted utterance to its final.
	for i := 0; i < 6; i++ {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, audioFrame(160)); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}

	sawFinal := false
	deadline := time.Now().Add(5 * time.Second)
	for !sawFinal && time.Now().Before(deadline) {
		var seg models.Segment
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&seg); err != nil {
			t.Fatalf("reading segment: %v", err)
		}
		if seg.CallId != "call-ws-1" || seg.SpeakerName != "alice" {
			t.Errorf("segment identity = (%q, %q), want (call-ws-1, alice)", seg.CallId, seg.SpeakerName)
		}
		if !seg.IsPartial {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Fatal("never received a final segment")
	}

	// The final must also have been persisted.
	waitStored(t, application.Store, "call-ws-1", 1)
}

func waitStored(t *testing.T, st store.Store, callId string, n int) []models.Segment {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		segs, err := st.Query(context.Background(), callId, time.Time{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(segs) >= n {
			return segs
		}
		if time.Now().After(deadline) {
			t.Fatalf("store has %d segments for %s, want %d", len(segs), callId, n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestMonitorFollowsOneCall(t *testing.T) {
	t.Parallel()

	application := testApplication(t)
	srv := httptest.NewServer(NewRouter(application))
	defer srv.Close()

	// Two separate callers; the monitor follows only the first.
	callerA := dial(t, wsURL(srv, "/api/stt/transcribe?callId=call-a&username=alice"))
	callerB := dial(t, wsURL(srv, "/api/stt/transcribe?callId=call-b&username=bob"))
	var ignore map[string]string
	readJSON(t, callerA, &ignore)
	readJSON(t, callerB, &ignore)

	monitor := dial(t, wsURL(srv, "/api/stt/connect?callId=call-a"))

	var callerIdMsg, callIdMsg monitorMessage
	readJSON(t, monitor, &callerIdMsg)
	if callerIdMsg.Type != "callerId" || callerIdMsg.Value == "" {
		t.Fatalf("first monitor frame = %+v, want callerId", callerIdMsg)
	}
	readJSON(t, monitor, &callIdMsg)
	if callIdMsg.Type != "callId" || callIdMsg.Value != "call-a" {
		t.Fatalf("second monitor frame = %+v, want callId call-a", callIdMsg)
	}

	for i := 0; i < 6; i++ {
		if err := callerA.WriteMessage(websocket.BinaryMessage, audioFrame(160)); err != nil {
			t.Fatalf("caller A write: %v", err)
		}
		if err := callerB.WriteMessage(websocket.BinaryMessage, audioFrame(160)); err != nil {
			t.Fatalf("caller B write: %v", err)
		}
	}
	waitStored(t, application.Store, "call-a", 1)
	waitStored(t, application.Store, "call-b", 1)

	deadline := time.Now().Add(6 * time.Second)
	for {
		var msg struct {
			Type  string           `json:"type"`
			Value []models.Segment `json:"value"`
		}
		monitor.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := monitor.ReadJSON(&msg); err != nil {
			t.Fatalf("monitor read: %v", err)
		}
		if msg.Type != "transcripts" {
			t.Fatalf("monitor frame type = %q, want transcripts", msg.Type)
		}
		for _, seg := range msg.Value {
			if seg.CallId != "call-a" {
				t.Fatalf("monitor for call-a received segment of %q", seg.CallId)
			}
		}
		if len(msg.Value) > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("monitor never received call-a transcripts")
		}
	}
}

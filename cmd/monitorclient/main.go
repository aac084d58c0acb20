// monitorclient follows one call's transcripts over the monitor socket and
// prints each poll tick. Pair it with audioclient to watch a call live.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:3131", "Relay base URL")
	callId := flag.String("call", "", "Call ID to follow (required)")
	flag.Parse()

	if *callId == "" {
		log.Fatal("-call is required")
	}

	target := *serverURL + "/api/stt/connect?callId=" + *callId
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Monitoring call %s", *callId)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Printf("connection closed: %v", err)
				return
			}
			var msg struct {
				Type  string          `json:"type"`
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Printf("unparseable frame: %s", raw)
				continue
			}
			switch msg.Type {
			case "callerId", "callId":
				log.Printf("%s = %s", msg.Type, msg.Value)
			case "transcripts":
				var segments []struct {
					SpeakerName string `json:"speakerName"`
					Transcript  string `json:"transcript"`
					IsPartial   bool   `json:"isPartial"`
				}
				if err := json.Unmarshal(msg.Value, &segments); err != nil {
					log.Printf("bad transcripts frame: %v", err)
					continue
				}
				for _, seg := range segments {
					marker := "final"
					if seg.IsPartial {
						marker = "partial"
					}
					log.Printf("[%s] %s: %s", marker, seg.SpeakerName, seg.Transcript)
				}
			default:
				log.Printf("unknown frame type %q", msg.Type)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		<-done
	case <-done:
	}
}

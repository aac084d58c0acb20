// audioclient streams a WAV file to a running relay and prints the
// transcripts it gets back. Useful for exercising a live or mock deployment.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 100ms of 16-bit mono samples per frame, converted to float32 before send.
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	serverURL := flag.String("server", "ws://localhost:3131", "Relay base URL")
	callId := flag.String("call", "test-call-"+time.Now().Format("150405"), "Call ID")
	username := flag.String("username", "audioclient", "Speaker name")
	language := flag.String("language", "", "Language code override")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)
	if audioFormat != 1 || bitsPerSample != 16 || numChannels != 1 {
		log.Fatal("Only 16-bit mono PCM supported")
	}

	q := url.Values{}
	q.Set("callId", *callId)
	q.Set("username", *username)
	q.Set("sampleRate", fmt.Sprintf("%d", sampleRate))
	if *language != "" {
		q.Set("language", *language)
	}
	target := *serverURL + "/api/stt/transcribe?" + q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", target, err)
	}
	defer conn.Close()
	log.Printf("Connected: callId=%s", *callId)

	// Print everything the relay sends back.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			log.Printf("<- %s", msg)
		}
	}()

	samplesPerChunk := int(sampleRate) * chunkIntervalMs / 1000
	pcmChunk := make([]byte, samplesPerChunk*2)
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := io.ReadFull(f, pcmChunk)
		if n == 0 {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			if err == io.EOF {
				break
			}
			log.Fatalf("Failed to read audio: %v", err)
		}

		frame := floatFrame(pcmChunk[:n])
		if werr := conn.WriteMessage(websocket.BinaryMessage, frame); werr != nil {
			log.Fatalf("Failed to send frame: %v", werr)
		}

		chunkNum++
		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%.1fs of audio)", chunkNum,
				float64(chunkNum)*chunkIntervalMs/1000)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
		if err == io.ErrUnexpectedEOF {
			break
		}
	}

	log.Printf("Finished streaming %d chunks in %v, waiting for finals...", chunkNum, time.Since(startTime))
	time.Sleep(3 * time.Second)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

// floatFrame converts 16-bit little-endian PCM to the float32 wire format the
// relay expects from callers.
func floatFrame(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)*2)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		f := float32(sample) / 32768.0
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

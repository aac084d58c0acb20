// Package eventstream implements the binary event-stream framing used by the
// streaming transcription endpoint: a length-prefixed prelude with CRC, typed
// headers, an opaque payload, and a trailing message CRC.
package eventstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrFraming indicates a malformed or truncated binary frame. A framing error
// is scoped to the offending message: the caller drops the message and the
// session continues.
var ErrFraming = errors.New("framing error")

// Header value type tags on the wire.
const (
	typeBoolTrue  = 0
	typeBoolFalse = 1
	typeByte      = 2
	typeShort     = 3
	typeInteger   = 4
	typeLong      = 5
	typeBytes     = 6
	typeString    = 7
	typeTimestamp = 8
	typeUUID      = 9
)

// Well-known header names and values.
const (
	HeaderMessageType = ":message-type"
	HeaderEventType   = ":event-type"

	MessageTypeEvent = "event"
	EventTypeAudio   = "AudioEvent"
)

// ValueKind discriminates the typed primitive carried by a header.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindBytes
	KindString
)

// Value is a tagged header value. Exactly one field besides Kind is
// meaningful, selected by Kind.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Int    int64
	Bytes  []byte
	String string
}

// StringValue wraps s as a string-typed header value.
func StringValue(s string) Value {
	return Value{Kind: KindString, String: s}
}

// Header is one named, typed header.
type Header struct {
	Name  string
	Value Value
}

// Message is a decoded event-stream frame.
type Message struct {
	Headers []Header
	Payload []byte
}

// Header returns the string form of the named header and whether it was
// present. Numeric and boolean values are not stringified; only string-typed
// headers match.
func (m *Message) Header(name string) (string, bool) {
	for _, h := range m.Headers {
		if h.Name == name && h.Value.Kind == KindString {
			return h.Value.String, true
		}
	}
	return "", false
}

// Type returns the :message-type header, or the empty string when absent.
func (m *Message) Type() string {
	t, _ := m.Header(HeaderMessageType)
	return t
}

// EncodeAudioEvent frames a PCM chunk as an AudioEvent message.
func EncodeAudioEvent(pcm []byte) []byte {
	return Encode(Message{
		Headers: []Header{
			{Name: HeaderMessageType, Value: StringValue(MessageTypeEvent)},
			{Name: HeaderEventType, Value: StringValue(EventTypeAudio)},
		},
		Payload: pcm,
	})
}

// Encode serializes a message: 12-byte prelude (total length, headers length,
// prelude CRC), headers, payload, trailing message CRC.
func Encode(msg Message) []byte {
	headers := encodeHeaders(msg.Headers)
	total := 12 + len(headers) + len(msg.Payload) + 4

	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint32(buf, uint32(total))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(headers)))
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	buf = append(buf, headers...)
	buf = append(buf, msg.Payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	return buf
}

func encodeHeaders(headers []Header) []byte {
	var buf []byte
	for _, h := range headers {
		buf = append(buf, byte(len(h.Name)))
		buf = append(buf, h.Name...)
		switch h.Value.Kind {
		case KindBool:
			if h.Value.Bool {
				buf = append(buf, typeBoolTrue)
			} else {
				buf = append(buf, typeBoolFalse)
			}
		case KindInt:
			buf = append(buf, typeLong)
			buf = binary.BigEndian.AppendUint64(buf, uint64(h.Value.Int))
		case KindBytes:
			buf = append(buf, typeBytes)
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Value.Bytes)))
			buf = append(buf, h.Value.Bytes...)
		default:
			buf = append(buf, typeString)
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Value.String)))
			buf = append(buf, h.Value.String...)
		}
	}
	return buf
}

// Decode parses a raw frame and validates both CRCs and all length fields.
func Decode(raw []byte) (Message, error) {
	if len(raw) < 16 {
		return Message{}, fmt.Errorf("%w: frame too short (%d bytes)", ErrFraming, len(raw))
	}

	total := binary.BigEndian.Uint32(raw[0:4])
	headersLen := binary.BigEndian.Uint32(raw[4:8])
	preludeCRC := binary.BigEndian.Uint32(raw[8:12])

	if int(total) != len(raw) {
		return Message{}, fmt.Errorf("%w: declared length %d does not match frame length %d", ErrFraming, total, len(raw))
	}
	if crc32.ChecksumIEEE(raw[0:8]) != preludeCRC {
		return Message{}, fmt.Errorf("%w: prelude checksum mismatch", ErrFraming)
	}
	if int(headersLen) > len(raw)-16 {
		return Message{}, fmt.Errorf("%w: headers length %d exceeds frame body", ErrFraming, headersLen)
	}

	messageCRC := binary.BigEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(raw[:len(raw)-4]) != messageCRC {
		return Message{}, fmt.Errorf("%w: message checksum mismatch", ErrFraming)
	}

	headers, err := decodeHeaders(raw[12 : 12+headersLen])
	if err != nil {
		return Message{}, err
	}

	payload := raw[12+headersLen : len(raw)-4]
	return Message{Headers: headers, Payload: payload}, nil
}

func decodeHeaders(buf []byte) ([]Header, error) {
	var headers []Header
	for len(buf) > 0 {
		nameLen := int(buf[0])
		buf = buf[1:]
		if len(buf) < nameLen+1 {
			return nil, fmt.Errorf("%w: truncated header name", ErrFraming)
		}
		name := string(buf[:nameLen])
		valueType := buf[nameLen]
		buf = buf[nameLen+1:]

		var value Value
		switch valueType {
		case typeBoolTrue:
			value = Value{Kind: KindBool, Bool: true}
		case typeBoolFalse:
			value = Value{Kind: KindBool, Bool: false}
		case typeByte:
			if len(buf) < 1 {
				return nil, fmt.Errorf("%w: truncated byte header %q", ErrFraming, name)
			}
			value = Value{Kind: KindInt, Int: int64(int8(buf[0]))}
			buf = buf[1:]
		case typeShort:
			if len(buf) < 2 {
				return nil, fmt.Errorf("%w: truncated short header %q", ErrFraming, name)
			}
			value = Value{Kind: KindInt, Int: int64(int16(binary.BigEndian.Uint16(buf)))}
			buf = buf[2:]
		case typeInteger:
			if len(buf) < 4 {
				return nil, fmt.Errorf("%w: truncated integer header %q", ErrFraming, name)
			}
			value = Value{Kind: KindInt, Int: int64(int32(binary.BigEndian.Uint32(buf)))}
			buf = buf[4:]
		case typeLong, typeTimestamp:
			if len(buf) < 8 {
				return nil, fmt.Errorf("%w: truncated long header %q", ErrFraming, name)
			}
			value = Value{Kind: KindInt, Int: int64(binary.BigEndian.Uint64(buf))}
			buf = buf[8:]
		case typeBytes, typeString:
			if len(buf) < 2 {
				return nil, fmt.Errorf("%w: truncated header %q", ErrFraming, name)
			}
			valueLen := int(binary.BigEndian.Uint16(buf))
			buf = buf[2:]
			if len(buf) < valueLen {
				return nil, fmt.Errorf("%w: header %q value exceeds frame", ErrFraming, name)
			}
			if valueType == typeString {
				value = Value{Kind: KindString, String: string(buf[:valueLen])}
			} else {
				value = Value{Kind: KindBytes, Bytes: append([]byte(nil), buf[:valueLen]...)}
			}
			buf = buf[valueLen:]
		case typeUUID:
			if len(buf) < 16 {
				return nil, fmt.Errorf("%w: truncated uuid header %q", ErrFraming, name)
			}
			value = Value{Kind: KindBytes, Bytes: append([]byte(nil), buf[:16]...)}
			buf = buf[16:]
		default:
			return nil, fmt.Errorf("%w: unknown header value type %d for %q", ErrFraming, valueType, name)
		}

		headers = append(headers, Header{Name: name, Value: value})
	}
	return headers, nil
}

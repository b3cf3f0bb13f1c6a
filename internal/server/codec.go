package server

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/speechprint/pkg/pipeline"
)

// Codec selects the encoding of server messages.
type Codec string

const (
	// CodecJSON sends JSON text messages.
	CodecJSON Codec = "json"
	// CodecMsgpack sends MessagePack binary messages.
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec parses a codec name.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(s); c {
	case CodecJSON, CodecMsgpack:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported codec %q (use json or msgpack)", s)
	}
}

// Marshal encodes v and returns the WebSocket message type to send it with.
func (c Codec) Marshal(v any) (int, []byte, error) {
	switch c {
	case CodecMsgpack:
		data, err := msgpack.Marshal(v)
		return websocket.BinaryMessage, data, err
	default:
		data, err := json.Marshal(v)
		return websocket.TextMessage, data, err
	}
}

// Unmarshal decodes data produced by Marshal.
func (c Codec) Unmarshal(data []byte, v any) error {
	if c == CodecMsgpack {
		return msgpack.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

// Message types sent by the server.
const (
	TypeReady   = "ready"
	TypeResult  = "result"
	TypeFlushed = "flushed"
	TypeError   = "error"
)

// Control types accepted from the client as text messages.
const (
	ControlFlush = "flush"
	ControlReset = "reset"
)

// Message is one server to client message.
type Message struct {
	Type   string `json:"type" msgpack:"type"`
	Stream string `json:"stream,omitempty" msgpack:"stream,omitempty"`

	// Set on ready.
	SampleRate int `json:"sample_rate,omitempty" msgpack:"sample_rate,omitempty"`
	FrameSize  int `json:"frame_size,omitempty" msgpack:"frame_size,omitempty"`

	Result *pipeline.Result `json:"result,omitempty" msgpack:"result,omitempty"`
	Error  string           `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Control is a client command.
type Control struct {
	Type string `json:"type"`
}

func resultMessage(id string, r pipeline.Result) Message {
	m := Message{Type: TypeResult, Stream: id, Result: &r}
	if r.Err != nil {
		m.Error = r.Err.Error()
	}
	return m
}

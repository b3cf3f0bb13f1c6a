package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/speechprint/pkg/audio/frame"
	"github.com/haivivi/speechprint/pkg/audio/resampler"
	"github.com/haivivi/speechprint/pkg/pipeline"
)

const writeTimeout = 10 * time.Second

// stream is one client connection with its own detector state.
type stream struct {
	id     string
	srv    *Server
	codec  Codec
	logger *slog.Logger

	det   Detector
	pipe  *pipeline.Pipeline
	rs    *resampler.Resampler
	split *frame.Splitter

	// odd trailing byte of the previous audio message
	carry []byte

	ws        *websocket.Conn
	closeOnce sync.Once
}

func (s *Server) newStream(p streamParams) (*stream, error) {
	id := uuid.NewString()
	logger := s.logger.With("stream", id)

	rs, err := resampler.New(resampler.Mono(p.rate), resampler.Mono(s.rate))
	if err != nil {
		return nil, err
	}
	if !rs.Passthrough() {
		logger.Debug("server: resampling client audio", "from", rs.Source(), "to", rs.Destination())
	}
	split, err := frame.NewSplitter(s.rate, s.frameSize)
	if err != nil {
		return nil, err
	}
	det, err := s.newDetector(s.rate)
	if err != nil {
		return nil, err
	}

	opts := append([]pipeline.Option{pipeline.WithLogger(logger)}, s.pipelineOpts...)
	return &stream{
		id:     id,
		srv:    s,
		codec:  p.codec,
		logger: logger,
		det:    det,
		pipe:   pipeline.New(det, s.embedder, opts...),
		rs:     rs,
		split:  split,
	}, nil
}

func (st *stream) serve() {
	st.ws.SetReadLimit(maxMessageSize)
	st.logger.Info("server: stream opened", "rate", st.rs.Source().SampleRate, "codec", st.codec)
	defer st.logger.Info("server: stream closed")

	err := st.send(Message{
		Type:       TypeReady,
		Stream:     st.id,
		SampleRate: st.split.SampleRate(),
		FrameSize:  st.split.FrameSize(),
	})
	if err != nil {
		return
	}

	for {
		mt, data, err := st.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				st.logger.Warn("server: read failed", "error", err)
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			err = st.audio(data)
		case websocket.TextMessage:
			err = st.control(data)
		}
		if err != nil {
			st.logger.Warn("server: stream aborted", "error", err)
			return
		}
	}
}

func (st *stream) audio(data []byte) error {
	if m := st.srv.metrics; m != nil {
		m.BytesReceived.Add(float64(len(data)))
	}
	if len(st.carry) > 0 {
		data = append(st.carry, data...)
		st.carry = nil
	}
	if len(data)%2 != 0 {
		st.carry = []byte{data[len(data)-1]}
		data = data[:len(data)-1]
	}

	samples, err := frame.DecodePCM16(data)
	if err != nil {
		return err
	}
	samples, err = st.rs.Process(samples)
	if err != nil {
		st.sendError(err)
		return err
	}
	return st.process(st.split.Push(samples))
}

func (st *stream) control(data []byte) error {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return st.sendError(fmt.Errorf("invalid control message: %w", err))
	}
	switch c.Type {
	case ControlFlush:
		tail, err := st.rs.Flush()
		if err != nil {
			return st.sendError(err)
		}
		if err := st.process(st.split.Push(tail)); err != nil {
			return err
		}
		if f, ok := st.split.Flush(); ok {
			if err := st.process([]frame.Frame{f}); err != nil {
				return err
			}
		}
		return st.send(Message{Type: TypeFlushed, Stream: st.id})
	case ControlReset:
		st.pipe.Reset()
		st.logger.Debug("server: detector reset by client")
		return nil
	default:
		return st.sendError(fmt.Errorf("unknown control %q", c.Type))
	}
}

func (st *stream) process(frames []frame.Frame) error {
	for _, f := range frames {
		if err := st.send(resultMessage(st.id, st.pipe.Process(f))); err != nil {
			return err
		}
	}
	return nil
}

func (st *stream) sendError(err error) error {
	return st.send(Message{Type: TypeError, Stream: st.id, Error: err.Error()})
}

func (st *stream) send(m Message) error {
	mt, data, err := st.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type, err)
	}
	st.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := st.ws.WriteMessage(mt, data); err != nil {
		return fmt.Errorf("write %s: %w", m.Type, err)
	}
	return nil
}

// shutdown tells the client the server is going away and closes the
// connection, which ends serve.
func (st *stream) shutdown() {
	st.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = st.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		st.ws.Close()
	})
}

func (st *stream) release() {
	if st.ws != nil {
		st.closeOnce.Do(func() { st.ws.Close() })
	}
	if err := st.det.Close(); err != nil {
		st.logger.Warn("server: close detector", "error", err)
	}
}

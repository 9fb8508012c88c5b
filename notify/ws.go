package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSServer upgrades HTTP requests to WebSocket connections and bridges
// them to the broker: request frames flow in (hello, subscribe,
// unsubscribe, credits), event frames flow out.
//
// The first frame on a connection must be a "hello" request, always
// encoded as JSON; it negotiates the wire format for the rest of the
// session (JSON or MessagePack).
type WSServer struct {
	broker       *Broker
	logger       *slog.Logger
	defaultCodec Codec

	connSeq atomic.Int64
}

// NewWSServer creates a WebSocket fanout server on top of the broker.
func NewWSServer(broker *Broker, logger *slog.Logger) *WSServer {
	return &WSServer{
		broker:       broker,
		logger:       logger,
		defaultCodec: &JSONCodec{},
	}
}

// ServeHTTP implements http.Handler. It upgrades the request and serves
// the frame loop until the client disconnects.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	go s.serveConn(conn)
}

// serveConn owns a single client connection.
func (s *WSServer) serveConn(conn net.Conn) {
	connID := fmt.Sprintf("ws-%d", s.connSeq.Add(1))
	defer func() {
		s.broker.RemoveSubscriber(connID)
		conn.Close()
		s.logger.Info("websocket disconnected", slog.String("conn_id", connID))
	}()

	s.logger.Info("websocket connected", slog.String("conn_id", connID))

	// Wait for the hello frame. It is always JSON, before negotiation.
	data, _, err := wsutil.ReadClientData(conn)
	if err != nil {
		return
	}
	var hello Frame
	if err := json.Unmarshal(data, &hello); err != nil || hello.Method != MethodHello {
		s.writeFrame(conn, s.defaultCodec, NewErrorFrame(hello.ID, ErrCodeBadRequest, "first frame must be hello"))
		return
	}

	var helloReq HelloRequest
	if len(hello.Data) > 0 {
		if err := json.Unmarshal(hello.Data, &helloReq); err != nil {
			s.writeFrame(conn, s.defaultCodec, NewErrorFrame(hello.ID, ErrCodeBadRequest, "invalid hello data"))
			return
		}
	}

	codec := s.defaultCodec
	if helloReq.Format != "" {
		codec = GetCodec(helloReq.Format)
	}

	resp, respErr := NewResponseFrame(hello.ID, HelloResponse{
		Format:    codec.Name(),
		SessionID: connID,
	})
	if respErr != nil {
		return
	}
	if err := s.writeFrame(conn, codec, resp); err != nil {
		return
	}

	// Create a subscriber for this connection and forward broker events
	// to the socket.
	sub := s.broker.Subscribe(connID)
	go s.forwardEvents(conn, codec, sub)

	// Frame processing loop.
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			return // Connection closed.
		}

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			s.writeFrame(conn, codec, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error()))
			continue
		}

		// Handle ping/pong.
		if frame.Type == FramePing {
			s.writeFrame(conn, codec, &Frame{
				ID:        GenerateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			})
			continue
		}

		// Handle credits replenishment.
		if frame.Credits > 0 {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		s.handleRequest(conn, codec, connID, sub, frame)
	}
}

// handleRequest dispatches a single request frame.
func (s *WSServer) handleRequest(conn net.Conn, codec Codec, connID string, sub *Subscriber, frame *Frame) {
	switch frame.Method {
	case MethodSubscribe:
		var req SubscribeRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.writeFrame(conn, codec, NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid subscribe data"))
			return
		}
		if err := ValidateTopic(req.Channel); err != nil {
			s.writeFrame(conn, codec, NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error()))
			return
		}
		s.broker.SubscribeTo(connID, req.Channel)
		if req.Credits > 0 {
			sub.AddCredits(int64(req.Credits))
		}
		s.respond(conn, codec, frame.ID, map[string]string{"channel": req.Channel})

	case MethodUnsubscribe:
		var req UnsubscribeRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.writeFrame(conn, codec, NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid unsubscribe data"))
			return
		}
		s.broker.Unsubscribe(connID, req.Channel)
		s.respond(conn, codec, frame.ID, map[string]string{"channel": req.Channel})

	case MethodStats:
		s.respond(conn, codec, frame.ID, s.broker.Stats())

	default:
		s.writeFrame(conn, codec, NewErrorFrame(frame.ID, ErrCodeMethodNotFound, fmt.Sprintf("unknown method %q", frame.Method)))
	}
}

func (s *WSServer) respond(conn net.Conn, codec Codec, correlID string, data any) {
	resp, err := NewResponseFrame(correlID, data)
	if err != nil {
		return
	}
	s.writeFrame(conn, codec, resp)
}

// forwardEvents reads from the subscriber channel and writes events
// to the WebSocket connection.
func (s *WSServer) forwardEvents(conn net.Conn, codec Codec, sub *Subscriber) {
	for evt := range sub.C() {
		evtFrame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if writeErr := s.writeFrame(conn, codec, evtFrame); writeErr != nil {
			return // Connection gone.
		}
	}
}

// writeFrame encodes and writes a frame, picking the WebSocket opcode
// that matches the codec (text for JSON, binary for msgpack).
func (s *WSServer) writeFrame(conn net.Conn, codec Codec, frame *Frame) error {
	data, err := codec.Encode(frame)
	if err != nil {
		return err
	}
	if codec.Name() == CodecNameJSON {
		return wsutil.WriteServerText(conn, data)
	}
	return wsutil.WriteServerBinary(conn, data)
}

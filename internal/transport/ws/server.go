package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/encoding"
	"voxeledit.ai/internal/sim/world"
)

type Config struct {
	// MaxPayloadBytes bounds a SELECTION payload before and after
	// decompression.
	MaxPayloadBytes int

	MessagesPerSecond float64
	Burst             int

	// QueueSize is the outbound buffer per connection.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 8 << 20
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 40
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

type Server struct {
	world *world.World
	log   *log.Logger
	cfg   Config

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger, cfg Config) *Server {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(log.Writer(), "[ws] ", log.LstdFlags)
	}
	s := &Server{
		world: w,
		log:   logger,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Base64 inflates by 4/3; leave room for the JSON envelope.
		conn.SetReadLimit(int64(s.cfg.MaxPayloadBytes)*4/3 + 64*1024)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sessionID, playerID, out := s.handshake(ctx, conn)
		if sessionID == "" {
			return
		}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		s.readLoop(ctx, conn, sessionID, playerID, out)
		cancel()

		// Cleanup.
		s.world.Leave() <- sessionID
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sessionID, playerID string, out chan []byte) {
	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !limiter.Allow() {
			sendError(out, protocol.ErrRateLimit, "too many messages")
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			sendError(out, protocol.ErrProtoBadRequest, "malformed json")
			continue
		}
		if base.ProtocolVersion != protocol.Version {
			sendError(out, protocol.ErrProtoBadRequest, "bad protocol_version")
			continue
		}
		if err := protocol.Validate(base.Type, msg); err != nil {
			sendError(out, protocol.ErrProtoBadRequest, err.Error())
			continue
		}
		env, ok := s.envelope(base.Type, msg, out)
		if !ok {
			continue
		}
		env.SessionID, env.PlayerID = sessionID, playerID
		select {
		case s.world.Inbox() <- env:
		case <-ctx.Done():
			return
		}
	}
}

// envelope decodes one validated client message. SELECTION payloads are
// decompressed here so the world loop only sees ready selections.
func (s *Server) envelope(typ string, msg []byte, out chan []byte) (world.Envelope, bool) {
	var env world.Envelope
	switch typ {
	case protocol.TypeSelection:
		var m protocol.SelectionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sendError(out, protocol.ErrProtoBadRequest, err.Error())
			return env, false
		}
		sel, sub, err := encoding.DecodePayload(m.Payload, s.cfg.MaxPayloadBytes)
		if err != nil {
			code := protocol.ErrBadRequest
			if errors.Is(err, encoding.ErrPayloadTooLarge) {
				code = protocol.ErrPayloadTooLarge
			}
			send(out, protocol.SelectionAckMsg{
				Type:            protocol.TypeSelectionAck,
				ProtocolVersion: protocol.Version,
				ID:              m.ID,
				Code:            code,
				Message:         err.Error(),
			})
			return env, false
		}
		env.Selection = &world.Upload{ID: m.ID, Origin: m.Origin, Selection: sel, Substrate: sub}
	case protocol.TypeAction:
		var m protocol.ActionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sendError(out, protocol.ErrProtoBadRequest, err.Error())
			return env, false
		}
		env.Action = &m
	case protocol.TypeUndo:
		var m protocol.UndoMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sendError(out, protocol.ErrProtoBadRequest, err.Error())
			return env, false
		}
		env.Undo = &m
	case protocol.TypeClientStatus:
		var m protocol.ClientStatusMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			sendError(out, protocol.ErrProtoBadRequest, err.Error())
			return env, false
		}
		env.ClientStatus = &m
	default:
		sendError(out, protocol.ErrProtoBadRequest, "unexpected message type "+typ)
		return env, false
	}
	return env, true
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (sessionID, playerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", "", nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", "", nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closeWith(conn, "bad HELLO")
		return "", "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", "", nil
	}

	sessionID = uuid.NewString()
	out = make(chan []byte, s.cfg.QueueSize)
	respCh := make(chan world.JoinResponse, 1)
	jctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	select {
	case s.world.Join() <- world.JoinRequest{
		SessionID:   sessionID,
		Name:        hello.PlayerName,
		ResumeToken: hello.ResumeToken,
		Out:         out,
		Resp:        respCh,
	}:
	case <-jctx.Done():
		closeWith(conn, "server busy")
		return "", "", nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-jctx.Done():
		closeWith(conn, "server busy")
		return "", "", nil
	}
	if resp.Err != "" {
		closeWith(conn, resp.Err)
		return "", "", nil
	}
	s.log.Printf("session %s joined as %s", sessionID, resp.Welcome.PlayerID)
	// The world already queued WELCOME on out.
	return sessionID, resp.Welcome.PlayerID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func sendError(out chan []byte, code, message string) {
	send(out, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
}

// send never blocks the reader; a full queue drops the message.
func send(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

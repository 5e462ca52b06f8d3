package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"chatrelay/internal/services/chatstore"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle stage of a connection session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

func (st State) String() string {
	switch st {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type frame struct {
	mt   int
	data []byte
}

// session drives one connection from authentication to teardown. Only its
// own goroutine touches name and state; readPump owns reads on the socket.
type session struct {
	id     string
	srv    *WsServer
	conn   *clientConn
	name   string
	state  State
	frames chan frame
	log    *zap.Logger
}

func newSession(srv *WsServer, conn *clientConn, remote string) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		srv:    srv,
		conn:   conn,
		state:  StateConnecting,
		frames: make(chan frame, 16),
		log:    zap.L().With(zap.String("session", id), zap.String("remote", remote)),
	}
}

func (s *session) run() {
	go s.readPump()

	s.setState(StateAuthenticating)
	if !s.authenticate() {
		s.conn.close()
		s.setState(StateClosed)
		return
	}
	go s.pinger()

	if err := s.activate(); err != nil {
		s.log.Error("session.activate", zap.Error(err))
	} else {
		s.serve()
	}
	s.teardown()
}

func (s *session) setState(st State) {
	s.log.Debug("session.state", zap.Stringer("from", s.state), zap.Stringer("to", st))
	s.state = st
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}

func (s *session) readPump() {
	defer close(s.frames)
	for {
		mt, data, err := s.conn.rawConn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		select {
		case s.frames <- frame{mt: mt, data: data}:
		case <-s.conn.done:
			return
		}
	}
}

func (s *session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("session.read_limit", zap.Int64("limit", s.srv.opts.ReadLimit))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived),
		errors.Is(err, io.EOF), isExpectedCloseError(err):
		s.log.Debug("session.read_closed", zap.Error(err))
	default:
		s.log.Info("session.read", zap.Error(err))
	}
}

func isExpectedCloseError(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func (s *session) pinger() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.conn.done:
			return
		case <-ticker.C:
			if err := s.conn.ping(); err != nil {
				s.log.Debug("session.ping", zap.Error(err))
				s.conn.close()
				return
			}
		}
	}
}

// authenticate consumes exactly one frame (or waits out the timeout) and
// settles the display name. It returns false if the peer is already gone.
func (s *session) authenticate() bool {
	var device string

	timer := time.NewTimer(s.srv.opts.AuthTimeout)
	defer timer.Stop()

	select {
	case f, open := <-s.frames:
		if !open {
			return false
		}
		device = parseAuthFrame(f)
	case <-timer.C:
		s.log.Info("session.auth_timeout", zap.Duration("after", s.srv.opts.AuthTimeout))
	}

	ctx, cancel := opContext()
	defer cancel()
	s.name = s.resolveName(ctx, device)
	s.log = s.log.With(zap.String("name", s.name))
	s.log.Info("session.authenticated", zap.Bool("device", device != ""))
	return true
}

func parseAuthFrame(f frame) string {
	if f.mt != websocket.TextMessage {
		return ""
	}
	var msg struct {
		ControlFrame
		AuthRequest
	}
	if err := json.Unmarshal(f.data, &msg); err != nil || msg.Type != "auth" {
		return ""
	}
	return msg.DeviceID
}

// resolveName adopts the device's stored name or mints an ephemeral one.
// Only a device with no stored name gets the ephemeral one bound to it; a
// failed lookup leaves the existing binding alone.
func (s *session) resolveName(ctx context.Context, device string) string {
	if device == "" {
		return s.srv.hub.NextAnonymousName()
	}

	name, ok, err := s.srv.store.GetUsername(ctx, device)
	if err != nil {
		s.log.Warn("session.get_username", zap.Error(err))
		return s.srv.hub.NextAnonymousName()
	}
	if ok && name != "" {
		return name
	}

	name = s.srv.hub.NextAnonymousName()
	if err := s.srv.store.SetUsername(ctx, device, name); err != nil {
		s.log.Warn("session.set_username", zap.Error(err))
	}
	return name
}

func (s *session) activate() error {
	s.srv.hub.Register(s.conn, s.name)
	s.setState(StateActive)

	ctx, cancel := opContext()
	defer cancel()

	if err := s.replayHistory(ctx, chatstore.GlobalRoom); err != nil {
		return err
	}
	s.srv.hub.BroadcastRoom(chatstore.GlobalRoom, websocket.TextMessage, []byte(joinedNotice(s.name)), nil)
	return s.srv.broadcastPresence(ctx)
}

func (s *session) replayHistory(ctx context.Context, roomName string) error {
	history, err := s.srv.store.RecentMessages(ctx, roomName, s.srv.opts.HistoryLimit)
	if err != nil {
		return err
	}
	for _, m := range history {
		if err := s.conn.writeText(chatLine(m.Username, m.Text)); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) serve() {
	for f := range s.frames {
		if err := s.handleFrame(f); err != nil {
			s.log.Error("session.frame", zap.Error(err))
			return
		}
	}
}

func (s *session) handleFrame(f frame) error {
	switch f.mt {
	case websocket.BinaryMessage:
		return s.srv.relayImage(s, f.data)
	case websocket.TextMessage:
		ctx, cancel := opContext()
		defer cancel()

		text := strings.TrimSpace(string(f.data))
		handled, err := s.srv.router.dispatch(ctx, s, text)
		if handled || err != nil {
			return err
		}
		return s.srv.chat(ctx, s, text)
	}
	return nil
}

// teardown runs exactly once after the session leaves ACTIVE, whatever the
// cause, so the remaining members always see the leave notice and the final
// presence snapshot.
func (s *session) teardown() {
	s.conn.close()
	roomName, name, ok := s.srv.hub.Unregister(s.conn)
	s.setState(StateClosed)
	if !ok {
		return
	}

	s.srv.hub.BroadcastRoom(roomName, websocket.TextMessage, []byte(leftNotice(name)), nil)

	ctx, cancel := opContext()
	defer cancel()
	if err := s.srv.broadcastPresence(ctx); err != nil {
		s.log.Warn("session.final_presence", zap.Error(err))
	}
	s.log.Info("session.closed", zap.String("room", roomName))
}

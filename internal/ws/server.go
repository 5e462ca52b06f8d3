package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/services/chatstore"
	"chatrelay/internal/services/moderation"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second // must be < pongWait
	storeTimeout = 5 * time.Second
)

// Options tunes the per-connection limits of the relay.
type Options struct {
	HistoryLimit  int
	MaxImageBytes int64
	// ReadLimit caps a single inbound frame at the transport level. Frames
	// above it close the connection, so it must stay above MaxImageBytes.
	ReadLimit   int64
	AuthTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		HistoryLimit:  50,
		MaxImageBytes: 25 * 1024 * 1024,
		ReadLimit:     32 * 1024 * 1024,
		AuthTimeout:   10 * time.Second,
	}
}

func (o Options) sanitized() Options {
	def := DefaultOptions()
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = def.HistoryLimit
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = def.MaxImageBytes
	}
	if o.ReadLimit < o.MaxImageBytes {
		o.ReadLimit = o.MaxImageBytes + 1024*1024
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = def.AuthTimeout
	}
	return o
}

type WsServer struct {
	hub      *Hub
	store    chatstore.IChatStore
	filter   *moderation.Filter
	router   *Router
	opts     Options
	upgrader websocket.Upgrader

	mu   sync.Mutex
	live map[*clientConn]struct{}
	wg   sync.WaitGroup
}

func NewWsServer(h *Hub, store chatstore.IChatStore, filter *moderation.Filter, opts Options) *WsServer {
	srv := &WsServer{
		hub:    h,
		store:  store,
		filter: filter,
		router: NewRouter(),
		opts:   opts.sanitized(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true }, // any origin
		},
		live: make(map[*clientConn]struct{}),
	}
	srv.registerHandlers() // ← all commands configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle upgrades the request and runs the connection's session until the
// peer goes away.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.ReadLimit)
	_ = rawConn.SetReadDeadline(time.Now().Add(pongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	conn := newClientConn(rawConn)
	if !s.track(conn) {
		conn.close()
		return
	}
	defer s.untrack(conn)

	newSession(s, conn, ginCtx.Request.RemoteAddr).run()
}

// Snapshot builds the presence payload: who is online now plus every name
// the store has ever bound.
func (s *WsServer) Snapshot(ctx context.Context) (UsersPayload, error) {
	all, err := s.store.AllUsernames(ctx)
	if err != nil {
		return UsersPayload{}, err
	}
	return NewUsersPayload(s.hub.Online(), all), nil
}

// Shutdown closes every live connection and waits for their sessions to
// finish tearing down.
func (s *WsServer) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	conns := make([]*clientConn, 0, len(s.live))
	for c := range s.live {
		conns = append(conns, c)
	}
	s.live = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	zap.L().Info("ws.shutdown", zap.Int("connections", len(conns)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) track(c *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil { // shutting down
		return false
	}
	s.live[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *WsServer) untrack(c *clientConn) {
	s.mu.Lock()
	if s.live != nil {
		delete(s.live, c)
	}
	s.mu.Unlock()
	s.wg.Done()
}

func (s *WsServer) registerHandlers() {
	// 🔹 /create --------------------------------------------------------------
	s.router.Command(cmdCreate, func(ctx context.Context, sess *session, _ string) error {
		code, err := s.hub.CreatePrivate(sess.conn)
		if err != nil {
			return err
		}
		if err := s.store.EnsureRoom(ctx, code, true); err != nil {
			return err
		}
		sess.log.Info("session.room_created", zap.String("room", code))
		if err := sess.conn.writeText(roomCreatedReply(code)); err != nil {
			return err
		}
		return s.broadcastPresence(ctx)
	})

	// 🔹 /join <code> ----------------------------------------------------------
	s.router.CommandWithArg(cmdJoin, func(ctx context.Context, sess *session, code string) error {
		err := s.hub.Join(sess.conn, code)
		if errors.Is(err, ErrRoomNotFound) {
			return sess.conn.writeText(replyRoomNotFound)
		}
		if err != nil {
			return err
		}
		sess.log.Info("session.room_joined", zap.String("room", code))
		if err := sess.replayHistory(ctx, code); err != nil {
			return err
		}
		s.hub.BroadcastRoom(code, websocket.TextMessage, []byte(joinedNotice(sess.name)), nil)
		return s.broadcastPresence(ctx)
	})

	// 🔹 {"type":"auth"} after authentication ----------------------------------
	Control(s.router, "auth", func(_ context.Context, sess *session, _ AuthRequest) error {
		sess.log.Debug("session.auth_ignored")
		return nil
	})
}

func (s *WsServer) broadcastPresence(ctx context.Context) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.hub.BroadcastAll(websocket.TextMessage, payload)
	return nil
}

func (s *WsServer) chat(ctx context.Context, sess *session, text string) error {
	if text == "" {
		return nil
	}
	roomName, ok := s.hub.RoomOf(sess.conn)
	if !ok {
		return ErrNotRegistered
	}
	if roomName == chatstore.GlobalRoom {
		text = s.filter.Apply(text)
	}
	if err := s.store.AppendMessage(ctx, roomName, sess.name, text); err != nil {
		return err
	}
	s.hub.BroadcastRoom(roomName, websocket.TextMessage, []byte(chatLine(sess.name, text)), nil)
	return nil
}

func (s *WsServer) relayImage(sess *session, data []byte) error {
	roomName, ok := s.hub.RoomOf(sess.conn)
	if !ok {
		return ErrNotRegistered
	}
	private, _ := s.hub.Lookup(roomName)
	if reason := imageRejection(private, data, s.opts.MaxImageBytes); reason != "" {
		return sess.conn.writeText(serverNotice(reason))
	}
	n := s.hub.BroadcastRoom(roomName, websocket.BinaryMessage, data, sess.conn)
	sess.log.Debug("session.image_relayed", zap.String("room", roomName), zap.Int("bytes", len(data)), zap.Int("recipients", n))
	return nil
}

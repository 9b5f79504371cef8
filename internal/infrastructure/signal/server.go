package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	"lexmeet/internal/infrastructure/middleware"
	"lexmeet/pkg/config"
	apperrors "lexmeet/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Metrics receives relay counters. monitoring.RelayCollector implements it.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	RoomsActive(n int)
	EventRelayed(event string, size int)
	EventRejected(reason string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()        {}
func (nopMetrics) ConnectionClosed()        {}
func (nopMetrics) RoomsActive(int)          {}
func (nopMetrics) EventRelayed(string, int) {}
func (nopMetrics) EventRejected(string)     {}

type RelayConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64
	Burst             int
	AllowedOrigins    []string
	SendBuffer        int
}

// RelayConfigFrom maps the signal and rate limiting sections onto the relay.
// With rate limiting disabled connections are not throttled.
func RelayConfigFrom(cfg *config.Config) RelayConfig {
	rc := RelayConfig{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Signal.AllowedOrigins,
		SendBuffer:     64,
	}
	if cfg.RateLimiting.Enabled {
		rc.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		rc.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	return rc
}

// relayConn is one participant socket. Writes go through send and are
// performed only by writePump.
type relayConn struct {
	id      string
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	roomID domain.RoomID
	role   domain.Role
	userID string

	done      chan struct{}
	closeOnce sync.Once
}

func (c *relayConn) membership() (domain.RoomID, domain.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.role
}

func (c *relayConn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *relayConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// RelayServer forwards signaling and chat events between the participants of
// a room, and direct messages between registered users.
type RelayServer struct {
	cfg      RelayConfig
	rooms    ports.RoomRepository
	metrics  Metrics
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*relayConn
	users map[string]*relayConn

	logger *zap.SugaredLogger
}

func NewRelayServer(cfg RelayConfig, rooms ports.RoomRepository, metrics Metrics, logger *zap.SugaredLogger) *RelayServer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	s := &RelayServer{
		cfg:     cfg,
		rooms:   rooms,
		metrics: metrics,
		conns:   make(map[string]*relayConn),
		users:   make(map[string]*relayConn),
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *RelayServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, "*") || lo.Contains(s.cfg.AllowedOrigins, origin)
}

// HandleWebSocket upgrades the request and serves the connection until it
// closes. The authenticated user id, if any, is read from the gin context.
func (s *RelayServer) HandleWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := &relayConn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, s.cfg.SendBuffer),
		userID: c.GetString(middleware.ContextUserID),
		done:   make(chan struct{}),
	}
	if s.cfg.MessagesPerSecond > 0 {
		conn.limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()
	s.metrics.ConnectionOpened()
	s.logger.Infow("participant connected", "conn_id", conn.id, "user_id", conn.userID)

	go s.writePump(conn)
	s.readPump(conn)
}

func (s *RelayServer) readPump(conn *relayConn) {
	defer s.cleanup(conn)

	if s.cfg.MaxMessageSize > 0 {
		conn.ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	_ = conn.ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading from participant", "conn_id", conn.id, "error", err)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		if conn.limiter != nil && !conn.limiter.Allow() {
			s.metrics.EventRejected("rate_limited")
			s.sendError(conn, "rate limit exceeded")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.metrics.EventRejected("malformed")
			s.sendError(conn, "malformed event")
			continue
		}

		if err := s.handleEvent(context.Background(), conn, env, len(data)); err != nil {
			s.metrics.EventRejected(env.Event)
			s.logger.Infow("error handling event", "conn_id", conn.id, "event", env.Event, "error", err)
			s.sendError(conn, err.Error())
		}
	}
}

func (s *RelayServer) writePump(conn *relayConn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case data := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Infow("error writing to participant", "conn_id", conn.id, "error", err)
				conn.close()
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "conn_id", conn.id, "error", err)
				conn.close()
				return
			}
		case <-conn.done:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			_ = conn.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

var (
	errNotInRoom      = errors.New("not joined to this room")
	errSenderMismatch = errors.New("sender does not match the registered user")
)

func (s *RelayServer) handleEvent(ctx context.Context, conn *relayConn, env Envelope, size int) error {
	switch env.Event {
	case domain.EventJoinRoom:
		return s.handleJoin(ctx, conn, env.Args)
	case domain.EventOffer, domain.EventAnswer, domain.EventCandidate:
		var roomID domain.RoomID
		if err := decodeArg(env.Args, 1, &roomID); err != nil {
			return err
		}
		if len(env.Args) < 1 {
			return errors.New("missing payload")
		}
		return s.forward(ctx, conn, roomID, env.Event, size, env.Args[0])
	case domain.EventSendCallChat:
		var roomID domain.RoomID
		if err := decodeArg(env.Args, 1, &roomID); err != nil {
			return err
		}
		if len(env.Args) < 3 {
			return errors.New("missing sender role")
		}
		return s.forward(ctx, conn, roomID, domain.EventRecvCallChat, size, env.Args[0], env.Args[2])
	case domain.EventRegister:
		return s.handleRegister(conn, env.Args)
	case domain.EventSendMessage:
		return s.handleDirectMessage(conn, env.Args, size)
	default:
		return errors.New("unknown event: " + env.Event)
	}
}

func (s *RelayServer) handleJoin(ctx context.Context, conn *relayConn, args []json.RawMessage) error {
	var rawRole string
	var roomID domain.RoomID
	if err := decodeArg(args, 0, &rawRole); err != nil {
		return err
	}
	if err := decodeArg(args, 1, &roomID); err != nil {
		return err
	}
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return err
	}
	if roomID == "" {
		return domain.ErrInvalidRoom
	}

	if prev, _ := conn.membership(); prev != "" && prev != roomID {
		s.leaveRoom(ctx, conn)
	}

	if err := s.rooms.Join(ctx, roomID, ports.RoomMember{ConnID: conn.id, Role: role, UserID: conn.userID}); err != nil {
		return err
	}
	conn.mu.Lock()
	conn.roomID = roomID
	conn.role = role
	conn.mu.Unlock()
	s.updateRooms(ctx)

	s.logger.Infow("participant joined room", "conn_id", conn.id, "room_id", roomID, "role", role)
	if _, err := s.broadcast(ctx, roomID, conn.id, domain.EventPeerJoined, role); err != nil {
		return err
	}
	return s.announcePresent(ctx, conn, roomID)
}

// announcePresent sends the joiner one peer-joined per member already in the
// room, so the offering side starts negotiating whichever side joined first.
func (s *RelayServer) announcePresent(ctx context.Context, conn *relayConn, roomID domain.RoomID) error {
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.ConnID == conn.id {
			continue
		}
		data, err := encodeEnvelope(domain.EventPeerJoined, m.Role)
		if err != nil {
			return err
		}
		if !conn.enqueue(data) {
			s.metrics.EventRejected("backpressure")
		}
	}
	return nil
}

func (s *RelayServer) forward(ctx context.Context, conn *relayConn, roomID domain.RoomID, event string, size int, args ...any) error {
	if joined, _ := conn.membership(); joined == "" || joined != roomID {
		return errNotInRoom
	}
	delivered, err := s.broadcast(ctx, roomID, conn.id, event, args...)
	if err != nil {
		return err
	}
	if delivered > 0 {
		s.metrics.EventRelayed(event, size)
	}
	s.logger.Debugw("relayed event", "room_id", roomID, "event", event, "delivered", delivered)
	return nil
}

func (s *RelayServer) handleRegister(conn *relayConn, args []json.RawMessage) error {
	var userID string
	if err := decodeArg(args, 0, &userID); err != nil {
		return err
	}
	if userID == "" {
		return errors.New("user id is required")
	}

	conn.mu.Lock()
	if conn.userID != "" && conn.userID != userID {
		conn.mu.Unlock()
		return errors.New("cannot register as another user")
	}
	conn.userID = userID
	conn.mu.Unlock()

	s.mu.Lock()
	s.users[userID] = conn
	s.mu.Unlock()
	s.logger.Infow("user registered", "conn_id", conn.id, "user_id", userID)
	return nil
}

func (s *RelayServer) handleDirectMessage(conn *relayConn, args []json.RawMessage, size int) error {
	var msg domain.DirectMessage
	if err := decodeArg(args, 0, &msg); err != nil {
		return err
	}
	if msg.ReceiverID == "" {
		return errors.New("receiver id is required")
	}
	conn.mu.Lock()
	self := conn.userID
	conn.mu.Unlock()
	if self == "" || msg.SenderID != self {
		s.metrics.EventRejected("sender_mismatch")
		return errSenderMismatch
	}

	s.mu.RLock()
	target, ok := s.users[msg.ReceiverID]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debugw("receiver offline", "receiver_id", msg.ReceiverID)
		return nil
	}

	data, err := encodeEnvelope(domain.EventReceiveMessage, args[0])
	if err != nil {
		return err
	}
	if target.enqueue(data) {
		s.metrics.EventRelayed(domain.EventReceiveMessage, size)
	} else {
		s.metrics.EventRejected("backpressure")
	}
	return nil
}

// broadcast sends event to every member of roomID connected to this relay
// except the sender.
func (s *RelayServer) broadcast(ctx context.Context, roomID domain.RoomID, except, event string, args ...any) (int, error) {
	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		return 0, err
	}
	data, err := encodeEnvelope(event, args...)
	if err != nil {
		return 0, err
	}

	delivered := 0
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range members {
		if m.ConnID == except {
			continue
		}
		target, ok := s.conns[m.ConnID]
		if !ok {
			continue
		}
		if target.enqueue(data) {
			delivered++
		} else {
			s.metrics.EventRejected("backpressure")
		}
	}
	return delivered, nil
}

func (s *RelayServer) sendError(conn *relayConn, message string) {
	data, err := encodeEnvelope(domain.EventError, message)
	if err != nil {
		return
	}
	conn.enqueue(data)
}

func (s *RelayServer) leaveRoom(ctx context.Context, conn *relayConn) {
	roomID, role := conn.membership()
	if roomID == "" {
		return
	}
	conn.mu.Lock()
	conn.roomID = ""
	conn.role = ""
	conn.mu.Unlock()

	if err := s.rooms.Leave(ctx, roomID, conn.id); err != nil && !errors.Is(err, domain.ErrRoomMemberNotFound) {
		s.logger.Warnw("error leaving room", "conn_id", conn.id, "room_id", roomID, "error", err)
	}
	if _, err := s.broadcast(ctx, roomID, conn.id, domain.EventPeerLeft, role); err != nil {
		s.logger.Warnw("error announcing departure", "room_id", roomID, "error", err)
	}
	s.updateRooms(ctx)
}

func (s *RelayServer) cleanup(conn *relayConn) {
	conn.close()
	ctx := context.Background()
	s.leaveRoom(ctx, conn)

	s.mu.Lock()
	delete(s.conns, conn.id)
	conn.mu.Lock()
	if conn.userID != "" && s.users[conn.userID] == conn {
		delete(s.users, conn.userID)
	}
	conn.mu.Unlock()
	s.mu.Unlock()

	s.metrics.ConnectionClosed()
	s.logger.Infow("participant disconnected", "conn_id", conn.id)
}

func (s *RelayServer) updateRooms(ctx context.Context) {
	n, err := s.rooms.Rooms(ctx)
	if err != nil {
		s.logger.Warnw("error counting rooms", "error", err)
		return
	}
	s.metrics.RoomsActive(n)
}

// Connections returns the number of open participant sockets.
func (s *RelayServer) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// RoomMembers lists the participants of the room named by the :id parameter.
func (s *RelayServer) RoomMembers(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	if roomID == "" {
		_ = c.Error(apperrors.NewInvalidInputError("room id is required"))
		return
	}
	members, err := s.rooms.Members(c.Request.Context(), roomID)
	if err != nil {
		_ = c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "room presence unavailable", http.StatusServiceUnavailable))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"members": members,
	})
}

// HealthCheck reports liveness with the current connection count.
func (s *RelayServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.Connections(),
	})
}

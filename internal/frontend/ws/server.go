// Package ws is the websocket transport for game clients. Each connection sends
// {"action": name, "args": {...}} frames and receives
// {"target": name, "arguments": [...]} notifications.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/game/session"
)

// Coordinator is the room coordination surface the transport drives.
type Coordinator interface {
	OnConnected(connID string) *session.BridgeEntity
	Join(ctx context.Context, connID, playerID, playerName, roomID string, x, y float64)
	Move(ctx context.Context, connID string, payload json.RawMessage)
	Chat(ctx context.Context, connID, sender, message string)
	StartGame(ctx context.Context, connID, mapName string)
	BulletFired(ctx context.Context, connID, playerID string, x, y, direction float64)
	TileDestroyed(ctx context.Context, connID string, tileX, tileY int)
	ReportCollision(ctx context.Context, connID, victimID string, damage int)
	CollectPowerUp(ctx context.Context, connID, powerUpID string)
	EndGame(ctx context.Context, connID, winnerID, winnerName string)
	Leave(ctx context.Context, connID string)
	Disconnected(ctx context.Context, connID string)
}

// Server serves the websocket endpoint, the health probe, and room history over HTTP.
type Server struct {
	cfg      config.TransportConfig
	coord    Coordinator
	health   *HealthHandler
	history  *HistoryHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine

	conns  *xsync.MapOf[string, *websocket.Conn]
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	running  bool
}

// NewServer builds the HTTP routes.
//
// Precondition: coord, health, hist, and logger must be non-nil; cfg.Path must start with "/".
// Postcondition: Returns a Server ready to be started with Start or mounted via Handler.
func NewServer(cfg config.TransportConfig, coord Coordinator, health *HealthHandler, hist *HistoryHandler, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		coord:   coord,
		health:  health,
		history: hist,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  xsync.NewMapOf[string, *websocket.Conn](),
		ctx:    ctx,
		cancel: cancel,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	engine.GET(cfg.Path, s.handleGameHub)
	engine.GET("/healthz", health.Handle)
	hist.register(engine)
	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves until Stop is called.
//
// Precondition: The server must not already be running.
// Postcondition: Returns nil after a clean Stop, or the listen/serve error.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpSrv = httpSrv
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket transport listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)

	if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop closes the listener and every open websocket, then waits for their
// cleanup to finish.
//
// Postcondition: Every connection has been reported to the coordinator as disconnected.
func (s *Server) Stop() {
	s.mu.Lock()
	httpSrv := s.httpSrv
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if wasRunning && httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
		cancel()
	}

	s.conns.Range(func(_ string, conn *websocket.Conn) bool {
		_ = conn.Close()
		return true
	})
	s.wg.Wait()
	s.logger.Info("websocket transport stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int {
	return s.conns.Size()
}

func (s *Server) handleGameHub(c *gin.Context) {
	if s.ctx.Err() != nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	// Registered before the upgrade hijacks the connection, while http.Server.Shutdown
	// still counts the request as active, so Stop's Wait cannot miss it.
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	s.conns.Store(connID, conn)
	defer s.conns.Delete(connID)
	defer conn.Close()

	// Stop cancels before closing tracked connections; a connection stored after
	// that sweep sees the cancellation here.
	if s.ctx.Err() != nil {
		s.logger.Debug("websocket closed: transport stopping", zap.String("conn", connID))
		return
	}
	s.serveConn(conn, connID)
}

// serveConn runs one connection: a write pump draining the connection's entity and a
// read loop dispatching inbound frames in order. Disconnected is reported exactly once
// when the read loop ends.
func (s *Server) serveConn(conn *websocket.Conn, connID string) {
	start := time.Now()
	logger := s.logger.With(zap.String("conn", connID), zap.String("remote_addr", conn.RemoteAddr().String()))

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	entity := s.coord.OnConnected(connID)

	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		s.writePump(conn, entity)
	}()

	conn.SetReadLimit(s.cfg.ReadLimit)
	err := s.readLoop(ctx, conn, connID, logger)

	s.coord.Disconnected(ctx, connID)
	writer.Wait()

	if err != nil {
		logger.Debug("session ended", zap.Error(err), zap.Duration("duration", time.Since(start)))
	} else {
		logger.Info("session ended cleanly", zap.Duration("duration", time.Since(start)))
	}
}

// readLoop dispatches frames until the client disconnects or the socket fails.
//
// Postcondition: Returns nil for a requested or normal close, otherwise the read error.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, connID string, logger *zap.Logger) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		handler, ok := actionHandlerMap[frame.Action]
		if !ok {
			logger.Debug("dropping unknown action", zap.String("action", frame.Action))
			continue
		}

		err = handler(&actionContext{ctx: ctx, connID: connID, args: frame.Args, coord: s.coord})
		if errors.Is(err, errDisconnect) {
			return nil
		}
		if err != nil {
			logger.Debug("dropping action", zap.String("action", frame.Action), zap.Error(err))
		}
	}
}

// writePump writes every notification pushed to entity until the entity is closed.
// After a write failure the socket is closed and remaining notifications are discarded.
func (s *Server) writePump(conn *websocket.Conn, entity *session.BridgeEntity) {
	logger := s.logger.With(zap.String("conn", entity.ConnID()))
	failed := false
	for n := range entity.Events() {
		if failed {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if err := conn.WriteJSON(n); err != nil {
			logger.Warn("writing notification", zap.String("target", n.Target), zap.Error(err))
			failed = true
			_ = conn.Close()
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// requestLogger logs each HTTP request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

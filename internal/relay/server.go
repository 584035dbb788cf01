package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/transfer"
)

type Config struct {
	Registry  *registry.Registry
	Transfers *transfer.Store
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	AllowedOrigins []string

	PingInterval         time.Duration
	IdleTimeout          time.Duration
	MaxMessageBytes      int64
	ConnectionQueueBytes int
	OutboundQueueFrames  int
	MaxMessagesPerSecond int
	// MaxBytesPerSecond caps inbound payload bytes per connection. Zero disables it.
	MaxBytesPerSecond int
	MaxConnections    int

	// Clock drives per-connection rate limiting. Nil uses the wall clock.
	Clock ratelimit.Clock
}

// Server implements GET /ws and GET /ws/{transfer_id}.
type Server struct {
	cfg      Config
	log      *slog.Logger
	sessions *SessionManager
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Transfers == nil {
		cfg.Transfers = transfer.NewStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: NewSessionManager(cfg.MaxConnections),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.ServeHTTP)
	mux.HandleFunc("GET /ws/{transfer_id}", s.ServeHTTP)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	return origin.AllowRequest(r, s.cfg.AllowedOrigins)
}

func (s *Server) Sessions() *SessionManager { return s.sessions }

// Ready reports ErrServerClosed once Close has been called.
func (s *Server) Ready() error {
	if s.ctx.Err() != nil {
		return ErrServerClosed
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	transferID := r.PathValue("transfer_id")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.cfg.Metrics.Inc(metrics.WSConnectionsRejected)
		return
	}
	conn := newWSConn(ws, s.cfg.MaxMessageBytes, s.cfg.IdleTimeout)

	sess := NewSession(conn, SessionOptions{
		ID:             uuid.NewString(),
		JoinTransferID: transferID,
		Registry:       s.cfg.Registry,
		Transfers:      s.cfg.Transfers,
		Metrics:        s.cfg.Metrics,
		Logger:         s.log,
		PingInterval:   s.cfg.PingInterval,
		QueueBytes:     s.cfg.ConnectionQueueBytes,
		OutboundFrames: s.cfg.OutboundQueueFrames,
		Limiter:        ratelimit.NewConnLimiter(s.cfg.Clock, s.cfg.MaxMessagesPerSecond, s.cfg.MaxBytesPerSecond),
	})

	if err := s.sessions.Add(sess); err != nil {
		s.cfg.Metrics.Inc(metrics.WSConnectionsRejected)
		code := websocket.CloseTryAgainLater
		if errors.Is(err, ErrServerClosed) {
			code = websocket.CloseGoingAway
		}
		_ = conn.CloseWithCode(code, err.Error())
		s.log.Warn("ws_rejected", "reason", err.Error(), "remote_addr", r.RemoteAddr)
		return
	}
	defer s.sessions.Remove(sess)

	s.cfg.Metrics.Inc(metrics.WSConnectionsOpened)
	s.log.Info("ws_connected", "conn_id", sess.ID(), "transfer_id", transferID, "remote_addr", r.RemoteAddr)

	err = sess.Run(s.ctx)

	s.cfg.Metrics.Inc(metrics.WSConnectionsClosed)
	attrs := []any{"conn_id", sess.ID(), "remote_addr", r.RemoteAddr}
	switch {
	case isOrderlyClose(err):
	case isTimeout(err):
		attrs = append(attrs, "reason", "idle_timeout")
	default:
		attrs = append(attrs, "reason", err.Error())
	}
	s.log.Info("ws_disconnected", attrs...)
}

// Close ends every live session and waits for them to finish tearing down, or
// for ctx to end. New connections are refused afterwards.
func (s *Server) Close(ctx context.Context) error {
	s.closeOnce.Do(s.cancel)
	return s.sessions.Close(ctx)
}

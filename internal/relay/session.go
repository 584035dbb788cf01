package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/transfer"
)

const (
	DefaultPingInterval   = 30 * time.Second
	DefaultQueueBytes     = 8 << 20
	DefaultOutboundFrames = 100
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type SessionOptions struct {
	// ID is the connection id registered for the session's lifetime.
	ID string
	// JoinTransferID, when set, pairs the session with that transfer's sender
	// as soon as it starts.
	JoinTransferID string

	Registry  *registry.Registry
	Transfers *transfer.Store
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	PingInterval time.Duration
	// QueueBytes is the byte budget of the session's delivery handle.
	QueueBytes int
	// OutboundFrames is the capacity of the queue feeding the writer.
	OutboundFrames int
	// Limiter bounds inbound frames. Nil means unlimited.
	Limiter *ratelimit.ConnLimiter
}

// Session is the per-connection unit of concurrency.
type Session struct {
	id     string
	joinID string
	conn   Conn

	registry  *registry.Registry
	transfers *transfer.Store
	metrics   *metrics.Metrics
	log       *slog.Logger
	limiter   *ratelimit.ConnLimiter

	pingInterval time.Duration

	handle   *registry.Handle
	outbound chan protocol.Frame

	state atomic.Int32

	// peer is the pairing target for binary frames. It is owned by the reader
	// duty and never read elsewhere.
	peer    string
	hasPeer bool

	aliasMu sync.Mutex
	closing bool
	aliases map[string]struct{}
}

func NewSession(conn Conn, opts SessionOptions) *Session {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.QueueBytes <= 0 {
		opts.QueueBytes = DefaultQueueBytes
	}
	if opts.OutboundFrames <= 0 {
		opts.OutboundFrames = DefaultOutboundFrames
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Session{
		id:           opts.ID,
		joinID:       opts.JoinTransferID,
		conn:         conn,
		registry:     opts.Registry,
		transfers:    opts.Transfers,
		metrics:      opts.Metrics,
		log:          opts.Logger.With("conn_id", opts.ID),
		limiter:      opts.Limiter,
		pingInterval: opts.PingInterval,
		handle:       registry.NewHandle(opts.QueueBytes),
		outbound:     make(chan protocol.Frame, opts.OutboundFrames),
		aliases:      make(map[string]struct{}),
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run registers the session and runs its duties until the first one exits or
// ctx is cancelled. The session is deregistered before Run returns,
// whatever the cause. The returned error is that first cause.
func (s *Session) Run(ctx context.Context) error {
	s.registry.Put(s.id, s.handle)
	s.setState(StateActive)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writeLoop(gctx) })
	g.Go(func() error { return s.pingLoop(gctx) })
	g.Go(func() error { return s.forwardLoop(gctx) })
	g.Go(func() error { return s.readLoop(gctx) })

	<-gctx.Done()
	cause := context.Cause(gctx)
	s.setState(StateClosing)
	s.teardown()

	_ = g.Wait()
	s.setState(StateClosed)
	return cause
}

// teardown removes every id this session answers to and closes both ends so
// blocked duties return.
func (s *Session) teardown() {
	s.aliasMu.Lock()
	s.closing = true
	aliases := s.aliases
	s.aliases = nil
	s.aliasMu.Unlock()

	for alias := range aliases {
		s.registry.RemoveIf(alias, s.handle)
	}
	s.registry.Remove(s.id)

	s.handle.Close()
	_ = s.conn.Close()
}

func (s *Session) enqueue(ctx context.Context, f protocol.Frame) error {
	select {
	case s.outbound <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.outbound:
			if err := s.conn.WriteFrame(f); err != nil {
				return fmt.Errorf("write %s frame: %w", f.Kind, err)
			}
		}
	}
}

func (s *Session) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.enqueue(ctx, protocol.PingFrame()); err != nil {
				return err
			}
		}
	}
}

func (s *Session) forwardLoop(ctx context.Context) error {
	for {
		f, ok := s.handle.Next()
		if !ok {
			return errHandleClosed
		}
		if err := s.enqueue(ctx, f); err != nil {
			return err
		}
	}
}

func (s *Session) readLoop(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.Inc(metrics.RouterPanics)
			s.log.Error("panic in router", "recover", rec)
			err = fmt.Errorf("%w: %v", errRouterPanic, rec)
		}
	}()

	if s.joinID != "" {
		if err := s.join(ctx); err != nil {
			return err
		}
	}

	for {
		f, err := s.conn.ReadFrame()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		switch f.Kind {
		case protocol.FrameClose:
			return errPeerClosed
		case protocol.FrameText, protocol.FrameBinary:
			if !s.limiter.AllowFrame(len(f.Data)) {
				s.metrics.Drop(metrics.DropReasonRateLimited)
				continue
			}
			if f.Kind == protocol.FrameText {
				s.routeText(f)
			} else {
				s.routeBinary(f)
			}
		}
	}
}

// isOrderlyClose reports whether err is an expected way for a session to end.
func isOrderlyClose(err error) bool {
	return err == nil ||
		errors.Is(err, errPeerClosed) ||
		errors.Is(err, errHandleClosed) ||
		errors.Is(err, context.Canceled)
}

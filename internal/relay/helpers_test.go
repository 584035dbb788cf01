package relay

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/transfer"
)

// fakeConn is an in-memory Conn. Tests push inbound frames on in and read
// what the session wrote from out.
type fakeConn struct {
	in     chan protocol.Frame
	out    chan protocol.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(outCap int) *fakeConn {
	return &fakeConn{
		in:     make(chan protocol.Frame, 16),
		out:    make(chan protocol.Frame, outCap),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrame() (protocol.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return protocol.Frame{}, io.EOF
	}
}

func (c *fakeConn) WriteFrame(f protocol.Frame) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendText(s string) { c.in <- protocol.TextFrame([]byte(s)) }

func (c *fakeConn) sendBinary(b []byte) { c.in <- protocol.BinaryFrame(b) }

type testEnv struct {
	reg     *registry.Registry
	store   *transfer.Store
	metrics *metrics.Metrics
}

func newTestEnv() *testEnv {
	return &testEnv{
		reg:     registry.New(),
		store:   transfer.NewStore(),
		metrics: metrics.New(),
	}
}

type runningSession struct {
	sess   *Session
	conn   *fakeConn
	cancel context.CancelFunc
	done   chan error
}

func (e *testEnv) start(t *testing.T, id, joinID string, tweak ...func(*SessionOptions)) *runningSession {
	t.Helper()
	return e.startOn(t, newFakeConn(64), id, joinID, tweak...)
}

func (e *testEnv) startOn(t *testing.T, conn *fakeConn, id, joinID string, tweak ...func(*SessionOptions)) *runningSession {
	t.Helper()

	opts := SessionOptions{
		ID:             id,
		JoinTransferID: joinID,
		Registry:       e.reg,
		Transfers:      e.store,
		Metrics:        e.metrics,
		PingInterval:   time.Hour,
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	sess := NewSession(conn, opts)
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{sess: sess, conn: conn, cancel: cancel, done: make(chan error, 1)}
	go func() { rs.done <- sess.Run(ctx) }()

	waitFor(t, "session "+id+" registered", func() bool {
		_, ok := e.reg.Get(id)
		return ok
	})

	t.Cleanup(func() {
		cancel()
		select {
		case <-rs.done:
		case <-time.After(2 * time.Second):
			t.Errorf("session %s did not stop", id)
		}
	})
	return rs
}

// wait blocks until Run returns.
func (rs *runningSession) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-rs.done:
		rs.done <- err
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s did not stop", rs.sess.ID())
		return nil
	}
}

// recv returns the next non-ping frame written to the transport.
func (rs *runningSession) recv(t *testing.T) protocol.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-rs.conn.out:
			if f.Kind == protocol.FramePing {
				continue
			}
			return f
		case <-deadline:
			t.Fatalf("session %s: no frame written", rs.sess.ID())
			return protocol.Frame{}
		}
	}
}

func (rs *runningSession) recvJSON(t *testing.T) map[string]any {
	t.Helper()
	f := rs.recv(t)
	if f.Kind != protocol.FrameText {
		t.Fatalf("kind=%s, want text", f.Kind)
	}
	var m map[string]any
	if err := json.Unmarshal(f.Data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", f.Data, err)
	}
	return m
}

func (rs *runningSession) expectNothing(t *testing.T) {
	t.Helper()
	timer := time.NewTimer(100 * time.Millisecond)
	defer timer.Stop()
	for {
		select {
		case f := <-rs.conn.out:
			if f.Kind == protocol.FramePing {
				continue
			}
			t.Fatalf("session %s: unexpected %s frame %q", rs.sess.ID(), f.Kind, f.Data)
		case <-timer.C:
			return
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

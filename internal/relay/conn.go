package relay

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/protocol"
)

const wsWriteWait = 10 * time.Second

// Conn is the transport a Session runs on.
//
// ReadFrame is only called by the reader duty and WriteFrame only by the
// writer duty. Close may be called from any goroutine, more than once, and
// must unblock both.
type Conn interface {
	// ReadFrame returns the next text, binary or close frame.
	ReadFrame() (protocol.Frame, error)
	WriteFrame(protocol.Frame) error
	Close() error
}

// wsConn adapts a gorilla WebSocket connection to Conn.
type wsConn struct {
	ws          *websocket.Conn
	idleTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, maxMessageBytes int64, idleTimeout time.Duration) *wsConn {
	c := &wsConn{ws: ws, idleTimeout: idleTimeout}
	if maxMessageBytes > 0 {
		ws.SetReadLimit(maxMessageBytes)
	}
	if idleTimeout > 0 {
		c.extendReadDeadline()
		ws.SetPongHandler(func(string) error {
			c.extendReadDeadline()
			return nil
		})
	}
	return c
}

func (c *wsConn) extendReadDeadline() {
	if c.idleTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
}

func (c *wsConn) ReadFrame() (protocol.Frame, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			// Only a close frame the peer actually sent is orderly. Gorilla
			// reports a vanished peer as 1006, which stays an error.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return protocol.CloseFrame(), nil
			}
			return protocol.Frame{}, err
		}
		c.extendReadDeadline()

		switch msgType {
		case websocket.TextMessage:
			return protocol.TextFrame(data), nil
		case websocket.BinaryMessage:
			return protocol.BinaryFrame(data), nil
		}
	}
}

func (c *wsConn) WriteFrame(f protocol.Frame) error {
	deadline := time.Now().Add(wsWriteWait)
	switch f.Kind {
	case protocol.FramePing:
		return c.ws.WriteControl(websocket.PingMessage, f.Data, deadline)
	case protocol.FrameClose:
		return c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	}

	msgType := websocket.BinaryMessage
	if f.Kind == protocol.FrameText {
		msgType = websocket.TextMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(msgType, f.Data)
}

func (c *wsConn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode sends a close frame with code and reason, then closes the
// underlying connection. Only the first call has any effect.
func (c *wsConn) CloseWithCode(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

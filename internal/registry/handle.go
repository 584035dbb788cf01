package registry

import (
	"sync"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/protocol"
)

// FrameOverhead is charged against the byte budget for every buffered frame
// on top of its payload, so empty frames still consume budget.
const FrameOverhead = 64

// Handle is the outbound delivery handle of one connection.
//
// Any goroutine holding a Handle may Send to it; exactly one forwarder per
// connection drains it with Next. Frames are buffered up to a byte budget so a
// slow peer never blocks the sender's read loop.
type Handle struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxBytes int
	curBytes int

	// frames[head:] are pending.
	frames []protocol.Frame
	head   int
}

func NewHandle(maxBytes int) *Handle {
	h := &Handle{maxBytes: maxBytes}
	h.notEmpty = sync.NewCond(&h.mu)
	return h
}

// frameCost is what a buffered frame holds on to: the full capacity of the
// buffer backing its payload plus bookkeeping.
func frameCost(f protocol.Frame) int {
	return cap(f.Data) + FrameOverhead
}

// Send appends frame if it fits within the byte budget. It never blocks. It
// returns ErrHandleFull or ErrHandleClosed when the frame was dropped.
func (h *Handle) Send(frame protocol.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	cost := frameCost(frame)
	if cost > h.maxBytes-h.curBytes {
		return ErrHandleFull
	}
	h.frames = append(h.frames, frame)
	h.curBytes += cost
	h.notEmpty.Signal()
	return nil
}

// Next blocks until a frame is available or the handle is closed. Frames still
// buffered at Close are discarded.
func (h *Handle) Next() (protocol.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.head == len(h.frames) && !h.closed {
		h.notEmpty.Wait()
	}
	if h.closed {
		return protocol.Frame{}, false
	}
	frame := h.frames[h.head]
	h.frames[h.head] = protocol.Frame{}
	h.head++
	h.curBytes -= frameCost(frame)

	switch {
	case h.head == len(h.frames):
		h.frames = h.frames[:0]
		h.head = 0
	case h.head >= 64 && h.head*2 >= len(h.frames):
		n := copy(h.frames, h.frames[h.head:])
		clear(h.frames[n:])
		h.frames = h.frames[:n]
		h.head = 0
	}
	return frame, true
}

func (h *Handle) Close() {
	h.mu.Lock()
	h.closed = true
	h.frames = nil
	h.head = 0
	h.curBytes = 0
	h.mu.Unlock()
	h.notEmpty.Broadcast()
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Len reports the number of buffered frames.
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames) - h.head
}

// Buffered reports the budget currently charged for buffered frames.
func (h *Handle) Buffered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.curBytes
}

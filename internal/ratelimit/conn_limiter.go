package ratelimit

// ConnLimiter bounds the inbound frame rate of one connection.
//
// A nil *ConnLimiter allows everything.
type ConnLimiter struct {
	frames *TokenBucket
	bytes  *TokenBucket
}

// NewConnLimiter returns nil when both limits are disabled (<= 0). The burst
// allowance of each bucket equals one second's worth of its rate.
func NewConnLimiter(clock Clock, framesPerSecond, bytesPerSecond int) *ConnLimiter {
	if framesPerSecond <= 0 && bytesPerSecond <= 0 {
		return nil
	}
	l := &ConnLimiter{}
	if framesPerSecond > 0 {
		l.frames = NewTokenBucket(clock, int64(framesPerSecond), int64(framesPerSecond))
	}
	if bytesPerSecond > 0 {
		l.bytes = NewTokenBucket(clock, int64(bytesPerSecond), int64(bytesPerSecond))
	}
	return l
}

// AllowFrame reports whether a frame of n payload bytes may be processed.
func (l *ConnLimiter) AllowFrame(n int) bool {
	if l == nil {
		return true
	}
	if l.frames != nil && !l.frames.Allow(1) {
		return false
	}
	if l.bytes != nil && !l.bytes.Allow(int64(n)) {
		return false
	}
	return true
}

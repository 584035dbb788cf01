package protocol

// FrameKind identifies the transport-level frame type carried by a Frame.
type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
	FramePing
	FrameClose
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FramePing:
		return "ping"
	case FrameClose:
		return "close"
	default:
		return "unknown"
	}
}

// Frame is one discrete message on a connection. Data is never modified once
// a Frame is constructed; relayed frames share the inbound buffer.
type Frame struct {
	Kind FrameKind
	Data []byte
}

func TextFrame(data []byte) Frame   { return Frame{Kind: FrameText, Data: data} }
func BinaryFrame(data []byte) Frame { return Frame{Kind: FrameBinary, Data: data} }

// PingFrame is the zero-payload keepalive sent on every ping interval.
func PingFrame() Frame { return Frame{Kind: FramePing} }

func CloseFrame() Frame { return Frame{Kind: FrameClose} }

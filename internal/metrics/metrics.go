package metrics

import "sync"

// Counter names.
const (
	WSConnectionsOpened   = "ws_connections_opened"
	WSConnectionsClosed   = "ws_connections_closed"
	WSConnectionsRejected = "ws_connections_rejected"

	TransfersCreated     = "transfers_created"
	TransfersJoined      = "transfers_joined"
	TransferJoinNotFound = "transfer_join_not_found"

	RelayedTextFrames   = "relayed_text_frames"
	RelayedBinaryFrames = "relayed_binary_frames"
	RelayedBytes        = "relayed_bytes"

	RouterPanics = "router_panics"
)

// Drop reasons. Each is counted under "drop_<reason>".
const (
	DropReasonUnresolvedTarget = "unresolved_target"
	DropReasonNoPairing        = "no_pairing"
	DropReasonQueueFull        = "queue_full"
	DropReasonPeerClosed       = "peer_closed"
	DropReasonMalformed        = "malformed"
	DropReasonRateLimited      = "rate_limited"
)

// DropCounter returns the counter name for a drop reason.
func DropCounter(reason string) string {
	return "drop_" + reason
}

// Metrics is a minimal, concurrency-safe counter registry.
//
// A nil *Metrics is valid and discards every update.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

// Drop counts one dropped frame for reason.
func (m *Metrics) Drop(reason string) {
	m.Inc(DropCounter(reason))
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of every counter.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return map[string]uint64{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}

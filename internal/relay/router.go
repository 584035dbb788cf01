package relay

import (
	"context"
	"errors"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/protocol"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/registry"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/transfer"
)

func (s *Session) routeText(f protocol.Frame) {
	msg := protocol.DecodeInbound(f.Data)
	switch msg.Kind {
	case protocol.InboundRegister:
		s.registerAlias(msg.ConnectionID)
	case protocol.InboundInitTransfer:
		s.initTransfer(msg.FileName, msg.FileSize)
	case protocol.InboundTargeted:
		s.setPeer(msg.TargetID)
		s.relay(msg.TargetID, f)
	default:
		s.metrics.Drop(metrics.DropReasonMalformed)
	}
}

func (s *Session) routeBinary(f protocol.Frame) {
	if !s.hasPeer {
		s.metrics.Drop(metrics.DropReasonNoPairing)
		return
	}
	s.relay(s.peer, f)
}

func (s *Session) setPeer(id string) {
	s.peer = id
	s.hasPeer = true
}

// relay hands f unmodified to the connection currently registered as target.
func (s *Session) relay(target string, f protocol.Frame) {
	h, ok := s.registry.Get(target)
	if !ok {
		s.metrics.Drop(metrics.DropReasonUnresolvedTarget)
		return
	}
	if !s.deliver(h, f) {
		return
	}
	if f.Kind == protocol.FrameText {
		s.metrics.Inc(metrics.RelayedTextFrames)
	} else {
		s.metrics.Inc(metrics.RelayedBinaryFrames)
	}
	s.metrics.Add(metrics.RelayedBytes, uint64(len(f.Data)))
	s.log.Debug("frame_relayed", "target", target, "kind", f.Kind.String(), "bytes", len(f.Data))
}

// deliver hands f to h and counts the drop reason when h refuses it.
func (s *Session) deliver(h *registry.Handle, f protocol.Frame) bool {
	err := h.Send(f)
	switch {
	case err == nil:
		return true
	case errors.Is(err, registry.ErrHandleClosed):
		s.metrics.Drop(metrics.DropReasonPeerClosed)
	default:
		s.metrics.Drop(metrics.DropReasonQueueFull)
	}
	return false
}

// registerAlias makes the connection reachable under id as well. Aliases are
// dropped at teardown unless another connection has claimed them since.
func (s *Session) registerAlias(id string) {
	s.aliasMu.Lock()
	defer s.aliasMu.Unlock()
	if s.closing {
		return
	}
	s.registry.Put(id, s.handle)
	s.aliases[id] = struct{}{}
	s.log.Debug("alias_registered", "alias", id)
}

func (s *Session) initTransfer(fileName string, fileSize uint64) {
	transferID := s.transfers.Create(transfer.Info{
		FileName: fileName,
		FileSize: fileSize,
		SenderID: s.id,
	})
	s.metrics.Inc(metrics.TransfersCreated)
	s.log.Info("transfer_created", "transfer_id", transferID, "file_name", fileName, "file_size", fileSize)

	f, err := protocol.EncodeText(protocol.NewTransferCreated(transferID))
	if err != nil {
		s.log.Error("encode transfer_created", "err", err)
		return
	}
	s.deliver(s.handle, f)
}

// join pairs this connection with the sender of joinID. Only the receiver
// side is paired; the sender keeps whatever pairing it had.
func (s *Session) join(ctx context.Context) error {
	info, ok := s.transfers.Get(s.joinID)
	if !ok {
		s.metrics.Inc(metrics.TransferJoinNotFound)
		s.log.Debug("transfer_join_not_found", "transfer_id", s.joinID)
		return nil
	}
	s.setPeer(info.SenderID)

	if sender, ok := s.registry.Get(info.SenderID); ok {
		f, err := protocol.EncodeText(protocol.NewReceiverConnected(s.joinID, s.id))
		if err == nil {
			s.deliver(sender, f)
		}
	}

	ready, err := protocol.EncodeText(protocol.NewTransferReady(info.FileName, info.FileSize))
	if err != nil {
		return err
	}
	if err := s.enqueue(ctx, ready); err != nil {
		return err
	}

	s.metrics.Inc(metrics.TransfersJoined)
	s.log.Info("receiver_joined", "transfer_id", s.joinID, "sender_id", info.SenderID)
	return nil
}

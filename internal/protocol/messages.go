package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type MessageType string

const (
	MessageTypeRegister          MessageType = "register"
	MessageTypeInitTransfer      MessageType = "init_transfer"
	MessageTypeTransferCreated   MessageType = "transfer_created"
	MessageTypeReceiverConnected MessageType = "receiver_connected"
	MessageTypeTransferReady     MessageType = "transfer_ready"
)

// ReceivePathPrefix is the path prefix of the shareable receive page.
const ReceivePathPrefix = "/receive/"

// ReceivePath returns the share path for a transfer.
func ReceivePath(transferID string) string {
	return ReceivePathPrefix + transferID
}

// InboundKind classifies a decoded client text frame.
type InboundKind int

const (
	// InboundIgnored covers invalid JSON, recognized messages with missing or
	// malformed fields, and anything matching no known shape.
	InboundIgnored InboundKind = iota
	InboundRegister
	InboundInitTransfer
	// InboundTargeted is any other message carrying a string target_id. It is
	// relayed verbatim.
	InboundTargeted
)

func (k InboundKind) String() string {
	switch k {
	case InboundRegister:
		return "register"
	case InboundInitTransfer:
		return "init_transfer"
	case InboundTargeted:
		return "targeted"
	default:
		return "ignored"
	}
}

// Inbound is the decoded form of one client text frame. Only the fields that
// belong to Kind are populated.
type Inbound struct {
	Kind InboundKind

	ConnectionID string

	FileName string
	FileSize uint64

	TargetID string
}

// DecodeInbound decodes a client text frame once.
//
// Key matching is exact (case-sensitive). A "type" of register or
// init_transfer never falls through to target_id routing, even when the
// required fields are missing.
func DecodeInbound(data []byte) Inbound {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return Inbound{Kind: InboundIgnored}
	}

	msgType, _ := stringField(fields["type"])
	switch MessageType(msgType) {
	case MessageTypeRegister:
		id, ok := stringField(fields["connectionId"])
		if !ok {
			return Inbound{Kind: InboundIgnored}
		}
		return Inbound{Kind: InboundRegister, ConnectionID: id}
	case MessageTypeInitTransfer:
		name, okName := stringField(fields["file_name"])
		size, okSize := uintField(fields["file_size"])
		if !okName || !okSize {
			return Inbound{Kind: InboundIgnored}
		}
		return Inbound{Kind: InboundInitTransfer, FileName: name, FileSize: size}
	}

	if target, ok := stringField(fields["target_id"]); ok {
		return Inbound{Kind: InboundTargeted, TargetID: target}
	}
	return Inbound{Kind: InboundIgnored}
}

func stringField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// uintField accepts plain non-negative integer literals only: 100 is a size,
// 100.0, 1e2 and -1 are not.
func uintField(raw json.RawMessage) (uint64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type TransferCreated struct {
	Type       MessageType `json:"type"`
	TransferID string      `json:"transfer_id"`
	ShareURL   string      `json:"share_url"`
}

type ReceiverConnected struct {
	Type       MessageType `json:"type"`
	TransferID string      `json:"transfer_id"`
	ReceiverID string      `json:"receiver_id"`
}

type TransferReady struct {
	Type     MessageType `json:"type"`
	FileName string      `json:"file_name"`
	FileSize uint64      `json:"file_size"`
}

func NewTransferCreated(transferID string) TransferCreated {
	return TransferCreated{
		Type:       MessageTypeTransferCreated,
		TransferID: transferID,
		ShareURL:   ReceivePath(transferID),
	}
}

func NewReceiverConnected(transferID, receiverID string) ReceiverConnected {
	return ReceiverConnected{
		Type:       MessageTypeReceiverConnected,
		TransferID: transferID,
		ReceiverID: receiverID,
	}
}

func NewTransferReady(fileName string, fileSize uint64) TransferReady {
	return TransferReady{
		Type:     MessageTypeTransferReady,
		FileName: fileName,
		FileSize: fileSize,
	}
}

// EncodeText marshals a server message into a text frame.
func EncodeText(msg any) (Frame, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, err
	}
	return TextFrame(data), nil
}

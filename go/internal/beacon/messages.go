package beacon

import (
	"bytes"
	"encoding/json"

	"github.com/mcdev12/fppsync/go/internal/synclog"
)

// MessageType is the "type" discriminator of client messages.
type MessageType string

const (
	MessageTypePing   MessageType = "ping"
	MessageTypePong   MessageType = "pong"
	MessageTypeReport MessageType = "report"
)

// ClientMessage is one parsed inbound message: PingMessage, ReportMessage or UnknownMessage.
type ClientMessage interface {
	Kind() string
}

// PingMessage asks for the server clock. ClientTs is echoed back untouched.
type PingMessage struct {
	ClientTs json.Number
}

func (PingMessage) Kind() string { return string(MessageTypePing) }

// ReportMessage carries client sync telemetry for the diagnostic log.
type ReportMessage struct {
	Report synclog.Report
}

func (ReportMessage) Kind() string { return string(MessageTypeReport) }

// UnknownMessage is anything that could not be parsed; it is dropped.
type UnknownMessage struct {
	Reason string
}

func (UnknownMessage) Kind() string { return "unknown" }

// PongMessage answers a ping.
type PongMessage struct {
	Type     MessageType `json:"type"`
	ClientTs json.Number `json:"client_ts"`
	ServerTs int64       `json:"server_ts"`
}

type inboundEnvelope struct {
	Type     MessageType     `json:"type"`
	ClientTs json.RawMessage `json:"client_ts"`
}

// ParseClientMessage decodes a raw websocket frame. It never fails; malformed
// input yields UnknownMessage.
func ParseClientMessage(data []byte) ClientMessage {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return UnknownMessage{Reason: "invalid json"}
	}

	switch env.Type {
	case MessageTypePing:
		ts, ok := parseTimestamp(env.ClientTs)
		if !ok {
			return UnknownMessage{Reason: "ping without numeric client_ts"}
		}
		return PingMessage{ClientTs: ts}

	case MessageTypeReport:
		var report synclog.Report
		if err := json.Unmarshal(data, &report); err != nil {
			return UnknownMessage{Reason: "invalid report fields"}
		}
		if report.Event == "" {
			return UnknownMessage{Reason: "report without event"}
		}
		return ReportMessage{Report: report}

	default:
		return UnknownMessage{Reason: "unknown type"}
	}
}

func parseTimestamp(raw json.RawMessage) (json.Number, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	n, ok := v.(json.Number)
	return n, ok
}

// NewPong builds the reply to a ping.
func NewPong(ping PingMessage, serverMs int64) PongMessage {
	return PongMessage{
		Type:     MessageTypePong,
		ClientTs: ping.ClientTs,
		ServerTs: serverMs,
	}
}

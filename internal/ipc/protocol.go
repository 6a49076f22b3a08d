// Package ipc is the command boundary between the clueless daemon and its
// clients.
//
// Messages are framed with a fixed 16-byte header followed by a JSON
// payload. Clients send requests and receive exactly one response per
// request, matched by request ID. Subscribed clients additionally receive
// pushed events.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"clueless/internal/dashboard"
	"clueless/internal/inspect"
	"clueless/internal/overlay"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x434C5043 // "CLPC"
)

// MaxPayload bounds a single message body.
const MaxPayload = 16 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Detection (0x01xx)
	MsgStartDetection     MessageType = 0x0100
	MsgStartDetectionResp MessageType = 0x0101
	MsgStopDetection      MessageType = 0x0102
	MsgStopDetectionResp  MessageType = 0x0103
	MsgGetReport          MessageType = 0x0104
	MsgGetReportResp      MessageType = 0x0105
	MsgClearHistory       MessageType = 0x0106
	MsgClearHistoryResp   MessageType = 0x0107
	MsgGetStatus          MessageType = 0x0108
	MsgGetStatusResp      MessageType = 0x0109
	MsgExportReport       MessageType = 0x010A
	MsgExportReportResp   MessageType = 0x010B

	// Overlay (0x02xx)
	MsgShowOverlay       MessageType = 0x0200
	MsgShowOverlayResp   MessageType = 0x0201
	MsgHideOverlay       MessageType = 0x0202
	MsgHideOverlayResp   MessageType = 0x0203
	MsgUpdateOverlay     MessageType = 0x0204
	MsgUpdateOverlayResp MessageType = 0x0205

	// System inspection (0x03xx)
	MsgGetProcesses      MessageType = 0x0300
	MsgGetProcessesResp  MessageType = 0x0301
	MsgGetNetwork        MessageType = 0x0302
	MsgGetNetworkResp    MessageType = 0x0303
	MsgGetSystemInfo     MessageType = 0x0304
	MsgGetSystemInfoResp MessageType = 0x0305

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504
)

var messageNames = map[MessageType]string{
	MsgPing:           "ping",
	MsgPong:           "pong",
	MsgHandshake:      "handshake",
	MsgHandshakeAck:   "handshake_ack",
	MsgError:          "error",
	MsgStartDetection: "start_detection",
	MsgStopDetection:  "stop_detection",
	MsgGetReport:      "get_report",
	MsgClearHistory:   "clear_history",
	MsgGetStatus:      "get_status",
	MsgExportReport:   "export_report",
	MsgShowOverlay:    "show_overlay",
	MsgHideOverlay:    "hide_overlay",
	MsgUpdateOverlay:  "update_overlay",
	MsgGetProcesses:   "get_processes",
	MsgGetNetwork:     "get_network",
	MsgGetSystemInfo:  "get_system_info",
	MsgSubscribe:      "subscribe",
	MsgUnsubscribe:    "unsubscribe",
	MsgEvent:          "event",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Response returns the response type paired with a request type. By
// convention it is the next code.
func (t MessageType) Response() MessageType {
	switch t {
	case MsgPing:
		return MsgPong
	case MsgHandshake:
		return MsgHandshakeAck
	}
	return t + 1
}

// EventType identifies the type of streamed event
type EventType uint16

const (
	// EventDetection carries an activity.Event as it is recorded.
	EventDetection EventType = 0x0001
	// EventStatus carries a dashboard.Snapshot after each poll.
	EventStatus EventType = 0x0002
	// EventMonitoring carries a MonitoringEvent when detection starts or stops.
	EventMonitoring EventType = 0x0003
	// EventHistoryCleared is sent after clear_history.
	EventHistoryCleared EventType = 0x0004
	EventDaemonShutdown EventType = 0x0005
)

// AllEvents is the subscription used when a client names none.
var AllEvents = []EventType{EventDetection, EventStatus, EventMonitoring, EventHistoryCleared, EventDaemonShutdown}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// FlagJSON marks a JSON payload. It is the only encoding.
const FlagJSON uint8 = 0x04

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("%w: invalid magic number %x", ErrProtocol, h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("%w: unsupported protocol version %d", ErrProtocol, h.Version)
	}
	return h, nil
}

// Write writes the message as a single frame.
func (m *Message) Write(w io.Writer) error {
	m.Header.Length = uint32(len(m.Payload))
	var frame bytes.Buffer
	frame.Grow(HeaderSize + len(m.Payload))
	if err := m.Header.Write(&frame); err != nil {
		return err
	}
	frame.Write(m.Payload)
	_, err := w.Write(frame.Bytes())
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("%w: payload too large: %d bytes", ErrProtocol, h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ErrProtocol marks malformed frames.
var ErrProtocol = errors.New("ipc: protocol error")

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ClientID        string `json:"client_id"`
	Platform        string `json:"platform"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	CodeUnknown          = 1
	CodeInvalidRequest   = 2
	CodePermissionDenied = 4
	CodeInternal         = 5
	CodeNotInitialized   = 7
	CodeUnsupported      = 10
)

// SuccessResponse acknowledges a command with no result.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// StatusResponse describes the daemon and the detector.
type StatusResponse struct {
	Version    string            `json:"version"`
	StartedAt  time.Time         `json:"started_at"`
	Uptime     time.Duration     `json:"uptime"`
	Platform   string            `json:"platform"`
	Monitoring bool              `json:"monitoring"`
	Status     overlay.Status    `json:"status"`
	Alerts     []dashboard.Alert `json:"alerts,omitempty"`
	Clients    int               `json:"clients"`
}

// ExportResponse carries an exported security report.
type ExportResponse struct {
	Data json.RawMessage `json:"data"`
}

// ProcessesResponse lists running processes.
type ProcessesResponse struct {
	Processes []inspect.Process `json:"processes"`
}

// NetworkResponse lists network sockets.
type NetworkResponse struct {
	Connections []inspect.Connection `json:"connections"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// MonitoringEvent is the payload of EventMonitoring.
type MonitoringEvent struct {
	Monitoring bool   `json:"monitoring"`
	Actor      string `json:"actor,omitempty"`
}

// Event is a streamed event
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes v as the event payload.
func NewEvent(t EventType, v any) (*Event, error) {
	ev := &Event{Type: t, Timestamp: time.Now()}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode event: %w", err)
		}
		ev.Data = data
	}
	return ev, nil
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}

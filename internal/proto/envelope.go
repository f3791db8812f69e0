package proto

import "github.com/goccy/go-json"

// Op is a gateway op-code.
type Op int

const (
	OpDispatch            Op = 0
	OpHeartbeat           Op = 1
	OpIdentify            Op = 2
	OpPresenceUpdate      Op = 3
	OpVoiceStateUpdate    Op = 4
	OpResume              Op = 6
	OpReconnect           Op = 7
	OpRequestGuildMembers Op = 8
	OpInvalidSession      Op = 9
	OpHello               Op = 10
	OpHeartbeatAck        Op = 11
	OpGuildSync           Op = 12
	OpCallConnect         Op = 13
	OpLazyRequest         Op = 14
)

// Inbound is the envelope for payloads coming from the client.
type Inbound struct {
	Op Op              `json:"op"`
	T  *string         `json:"t,omitempty"`
	S  *int64          `json:"s,omitempty"`
	D  json.RawMessage `json:"d"`
}

// Frame is the envelope for payloads sent to the client. T and S are null
// for everything except dispatches.
type Frame struct {
	Op Op      `json:"op"`
	T  *string `json:"t"`
	S  *int64  `json:"s"`
	D  any     `json:"d"`
}

// NewDispatch builds an op 0 frame. A zero seq produces a null "s".
func NewDispatch(eventType string, seq int64, data any) *Frame {
	t := eventType
	f := &Frame{Op: OpDispatch, T: &t, D: data}
	if seq > 0 {
		s := seq
		f.S = &s
	}
	return f
}

// NewHello builds the op 10 greeting.
func NewHello(intervalMS int64, trace []string) *Frame {
	return &Frame{Op: OpHello, D: HelloData{HeartbeatInterval: intervalMS, Trace: trace}}
}

// NewHeartbeatAck builds the op 11 acknowledgement.
func NewHeartbeatAck() *Frame {
	return &Frame{Op: OpHeartbeatAck, D: nil}
}

// NewInvalidSession builds op 9; resumable tells the client whether to retry a resume.
func NewInvalidSession(resumable bool) *Frame {
	return &Frame{Op: OpInvalidSession, D: resumable}
}

// NewReconnect builds op 7, telling the client to reconnect and resume.
func NewReconnect() *Frame {
	return &Frame{Op: OpReconnect, D: nil}
}

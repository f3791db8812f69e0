package proto

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
)

// DecodeInbound parses one client payload.
func DecodeInbound(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, NewCloseError(CloseDecodeError, "")
	}
	return &in, nil
}

// DecodeData unmarshals an inbound "d" into v, mapping failures to a decode close.
func DecodeData(in *Inbound, v any) error {
	if len(in.D) == 0 || string(in.D) == "null" {
		return NewCloseError(CloseDecodeError, "missing payload")
	}
	if err := json.Unmarshal(in.D, v); err != nil {
		return NewCloseError(CloseDecodeError, "")
	}
	return nil
}

// Encoder serializes frames for one connection. With zlib-stream every frame
// is written into one shared deflate stream and sync-flushed, so the client
// inflates the concatenation. Safe for concurrent use.
type Encoder struct {
	mu         sync.Mutex
	stream     bool
	perPayload bool
	buf        bytes.Buffer
	zw         *zlib.Writer
}

// NewEncoder returns an encoder for the negotiated compression.
func NewEncoder(c Compression) *Encoder {
	e := &Encoder{stream: c == CompressionZlibStream}
	if e.stream {
		e.zw = zlib.NewWriter(&e.buf)
	}
	return e
}

// SetPayloadCompression enables per-frame zlib (identify "compress": true).
// It is ignored when a zlib stream is already in use.
func (e *Encoder) SetPayloadCompression(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.stream {
		e.perPayload = on
	}
}

// Encode returns the bytes for f and whether they must go out as a binary message.
func (e *Encoder) Encode(f *Frame) ([]byte, bool, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, false, fmt.Errorf("marshal frame: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.stream:
		e.buf.Reset()
		if _, err := e.zw.Write(raw); err != nil {
			return nil, false, fmt.Errorf("deflate frame: %w", err)
		}
		if err := e.zw.Flush(); err != nil {
			return nil, false, fmt.Errorf("flush frame: %w", err)
		}
		return bytes.Clone(e.buf.Bytes()), true, nil
	case e.perPayload:
		var out bytes.Buffer
		zw := zlib.NewWriter(&out)
		if _, err := zw.Write(raw); err != nil {
			return nil, false, fmt.Errorf("deflate frame: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, false, fmt.Errorf("close deflate: %w", err)
		}
		return out.Bytes(), true, nil
	default:
		return raw, false, nil
	}
}

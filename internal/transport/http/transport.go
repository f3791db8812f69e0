package http

import (
	"context"
	"sync"

	"github.com/coder/websocket"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
)

// wsTransport writes gateway frames to one WebSocket. Encoding and writing
// happen under one lock so a shared zlib stream stays in frame order.
type wsTransport struct {
	conn *websocket.Conn
	enc  *proto.Encoder

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, enc *proto.Encoder) *wsTransport {
	return &wsTransport{conn: conn, enc: enc}
}

// WriteFrame implements core.Transport.
func (t *wsTransport) WriteFrame(ctx context.Context, f *proto.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, binary, err := t.enc.Encode(f)
	if err != nil {
		return err
	}
	typ := websocket.MessageText
	if binary {
		typ = websocket.MessageBinary
	}
	return t.conn.Write(ctx, typ, data)
}

// Close implements core.Transport. The close handshake runs in the
// background; only the first call has an effect.
func (t *wsTransport) Close(code proto.CloseCode, reason string) {
	t.closeOnce.Do(func() {
		go func() {
			_ = t.conn.Close(websocket.StatusCode(code), reason)
		}()
	})
}

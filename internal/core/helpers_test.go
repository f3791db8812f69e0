package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/store/sqlite"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport records written frames and the close code.
type fakeTransport struct {
	mu        sync.Mutex
	frames    []*proto.Frame
	closed    bool
	code      proto.CloseCode
	failWrite bool
	notify    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notify: make(chan struct{}, 1024)}
}

func (f *fakeTransport) WriteFrame(_ context.Context, frame *proto.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failWrite {
		return errTransportClosed
	}
	f.frames = append(f.frames, frame)
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakeTransport) Close(code proto.CloseCode, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		f.code = code
	}
}

func (f *fakeTransport) Frames() []*proto.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*proto.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeTransport) CloseCode() (proto.CloseCode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.code, f.closed
}

// waitFrames blocks until at least n frames were written.
func (f *fakeTransport) waitFrames(t *testing.T, n int) []*proto.Frame {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.Frames()) >= n }, 2*time.Second, 5*time.Millisecond,
		"expected %d frames", n)
	return f.Frames()
}

func frameTypes(frames []*proto.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		if f.T != nil {
			out = append(out, *f.T)
		}
	}
	return out
}

func frameSeqs(frames []*proto.Frame) []int64 {
	out := make([]int64, 0, len(frames))
	for _, f := range frames {
		if f.S != nil {
			out = append(out, *f.S)
		}
	}
	return out
}

// recordingNotifier captures presence announcements.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []presenceChange
}

type presenceChange struct {
	UserID string
	Status Status
}

func (n *recordingNotifier) PresenceChanged(_ context.Context, userID string, p Presence) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, presenceChange{UserID: userID, Status: p.Status})
}

func (n *recordingNotifier) Changes() []presenceChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]presenceChange, len(n.changes))
	copy(out, n.changes)
	return out
}

func newTestRegistry(t *testing.T, bufferSize int) (*Registry, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	r := NewRegistry(RegistryOptions{
		ReplayBufferSize: bufferSize,
		ResumeTimeout:    time.Minute,
		Clock:            mock,
	}, nil)
	return r, mock
}

func readyFor(data any) func(string) (any, error) {
	return func(string) (any, error) { return data, nil }
}

func identify(t *testing.T, r *Registry, userID string, tr Transport) *Session {
	t.Helper()
	s, err := r.Identify(context.Background(), IdentifyParams{
		UserID:    userID,
		Transport: tr,
		Client:    ClientInfo{Version: 6},
		Presence:  Presence{Status: StatusOnline},
	}, readyFor(map[string]string{"user": userID}))
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	s, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustAccount(t *testing.T, s *sqlite.SQLiteStore, name string) *store.Account {
	t.Helper()
	a, err := s.CreateAccount(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	return a
}

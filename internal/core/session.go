package core

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
)

// writeTimeout bounds a single frame write on an attached transport.
const writeTimeout = 10 * time.Second

// Transport is the connection a session is attached to.
type Transport interface {
	WriteFrame(ctx context.Context, frame *proto.Frame) error
	Close(code proto.CloseCode, reason string)
}

// ClientInfo describes the client build behind a session.
type ClientInfo struct {
	Release    proto.Release
	Version    int
	Properties map[string]any
}

// Session is one logical client connection. It survives transport loss for
// the resume window and keeps the events it was sent for replay.
type Session struct {
	userID string

	mu         sync.Mutex
	id         string
	seq        int64
	buffer     *replayBuffer
	presence   Presence
	presenceAt time.Time
	client     ClientInfo
	attached   *attachment
	alive      bool
	// epoch changes on every attach and detach; stale resume timers compare it.
	epoch int64
	// detachedAt is zero while attached.
	detachedAt time.Time
	// resumeTimer destroys the session when the resume window runs out.
	resumeTimer *clock.Timer
}

func newSession(id, userID string, bufferSize int) *Session {
	return &Session{
		id:     id,
		userID: userID,
		buffer: newReplayBuffer(bufferSize),
		alive:  true,
	}
}

// ID returns the current session id. It changes when a superseding identify
// rebinds the session.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// UserID returns the owning user.
func (s *Session) UserID() string {
	return s.userID
}

// Seq returns the last sequence number handed out.
func (s *Session) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Client returns the negotiated client info.
func (s *Session) Client() ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Presence returns the presence this session last set.
func (s *Session) Presence() Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

// Attached reports whether the session currently has a live transport.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached != nil
}

// Alive reports whether the session is still registered.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Deliver sequences an event, keeps it for replay and queues it for the
// transport when attached. It returns the assigned sequence.
func (s *Session) Deliver(eventType string, data any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverLocked(eventType, data)
}

func (s *Session) deliverLocked(eventType string, data any) (int64, error) {
	if !s.alive {
		return 0, ErrSessionClosed
	}
	s.seq++
	s.buffer.push(bufferedEvent{Seq: s.seq, Type: eventType, Data: data})
	if s.attached != nil {
		s.attached.enqueue(proto.NewDispatch(eventType, s.seq, data), s.buffer.capacity())
	}
	return s.seq, nil
}

// attachLocked binds a transport and queues the initial frames.
func (s *Session) attachLocked(t Transport, initial []*proto.Frame, onFailure func(*attachment, error)) *attachment {
	s.epoch++
	s.detachedAt = time.Time{}
	s.stopResumeTimerLocked()
	att := newAttachment(t, onFailure)
	att.queue = append(att.queue, initial...)
	s.attached = att
	go att.run()
	att.signal()
	return att
}

// detachLocked unbinds the current transport and returns it for closing.
func (s *Session) detachLocked(now time.Time) *attachment {
	att := s.attached
	if att == nil {
		return nil
	}
	s.attached = nil
	s.epoch++
	s.detachedAt = now
	att.stop()
	return att
}

func (s *Session) stopResumeTimerLocked() {
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
}

// resetLocked starts a fresh identify span on an existing session object.
func (s *Session) resetLocked(id string, bufferSize int) {
	s.id = id
	s.seq = 0
	s.buffer = newReplayBuffer(bufferSize)
	s.alive = true
}

// attachment is one transport binding with its ordered outbox.
type attachment struct {
	transport Transport
	onFailure func(*attachment, error)

	mu     sync.Mutex
	queue  []*proto.Frame
	failed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newAttachment(t Transport, onFailure func(*attachment, error)) *attachment {
	ctx, cancel := context.WithCancel(context.Background())
	return &attachment{
		transport: t,
		onFailure: onFailure,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// enqueue appends a frame; limit is the outbox size past which the consumer
// is considered too slow.
func (a *attachment) enqueue(f *proto.Frame, limit int) {
	a.mu.Lock()
	a.queue = append(a.queue, f)
	overflow := limit > 0 && len(a.queue) > limit
	a.mu.Unlock()

	if overflow {
		go a.fail(errSlowConsumer)
		return
	}
	a.signal()
}

func (a *attachment) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *attachment) stop() {
	a.cancel()
}

func (a *attachment) fail(err error) {
	a.mu.Lock()
	if a.failed {
		a.mu.Unlock()
		return
	}
	a.failed = true
	a.mu.Unlock()

	if a.onFailure != nil {
		a.onFailure(a, err)
	}
}

// run drains the outbox in order until the attachment is stopped or a write fails.
func (a *attachment) run() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.wake:
		}

		for {
			a.mu.Lock()
			batch := a.queue
			a.queue = nil
			a.mu.Unlock()
			if len(batch) == 0 {
				break
			}

			for _, f := range batch {
				if a.ctx.Err() != nil {
					return
				}
				ctx, cancel := context.WithTimeout(a.ctx, writeTimeout)
				err := a.transport.WriteFrame(ctx, f)
				cancel()
				if err != nil {
					if a.ctx.Err() == nil {
						a.fail(err)
					}
					return
				}
			}
		}
	}
}

package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/utils"
)

// Sessions is the read side of the registry used for fanout.
type Sessions interface {
	// UserSessions returns the live sessions of a user.
	UserSessions(userID string) []*Session
	// UserIDs returns every user with at least one live session.
	UserIDs() []string
}

// PresenceNotifier is told when a user's aggregate presence changes.
type PresenceNotifier interface {
	PresenceChanged(ctx context.Context, userID string, presence Presence)
}

// RegistryOptions configures session lifetimes.
type RegistryOptions struct {
	ReplayBufferSize int
	ResumeTimeout    time.Duration
	// MultiSession keeps concurrent logins of one user instead of superseding.
	MultiSession bool
	Clock        clock.Clock
}

// IdentifyParams describes a successful identify.
type IdentifyParams struct {
	UserID    string
	Transport Transport
	Client    ClientInfo
	Presence  Presence
}

// ResumeParams describes a resume attempt.
type ResumeParams struct {
	SessionID string
	UserID    string
	Seq       int64
	Transport Transport
	Trace     []string
}

// Registry maps session ids and user ids to live sessions.
type Registry struct {
	opts   RegistryOptions
	clock  clock.Clock
	logger *zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string][]*Session
	notifier PresenceNotifier

	// presenceMu guards userPresence; each entry serializes one user's
	// announcements.
	presenceMu   sync.Mutex
	userPresence map[string]*userPresence
}

// userPresence is the last aggregate announced for a user.
type userPresence struct {
	mu        sync.Mutex
	announced Presence
	// refs counts callers holding or waiting on mu.
	refs int
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions, logger *zerolog.Logger) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ReplayBufferSize <= 0 {
		opts.ReplayBufferSize = 500
	}
	if opts.ResumeTimeout <= 0 {
		opts.ResumeTimeout = 2 * time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		opts:         opts,
		clock:        opts.Clock,
		logger:       logger,
		sessions:     make(map[string]*Session),
		byUser:       make(map[string][]*Session),
		userPresence: make(map[string]*userPresence),
	}
}

// SetPresenceNotifier installs the presence fanout.
func (r *Registry) SetPresenceNotifier(n PresenceNotifier) {
	r.mu.Lock()
	r.notifier = n
	r.mu.Unlock()
}

// Identify registers a fresh identify span. ready builds the READY payload for
// the new session id; it runs before any lock is taken and is delivered as
// sequence 1. Without MultiSession, the user's existing sessions are
// superseded: their transports are closed and the most recent session object
// is rebound to the new transport.
func (r *Registry) Identify(ctx context.Context, p IdentifyParams, ready func(sessionID string) (any, error)) (*Session, error) {
	id := utils.NewSessionID()
	data, err := ready(id)
	if err != nil {
		return nil, err
	}

	var superseded []*attachment

	r.mu.Lock()
	var s *Session
	if existing := r.byUser[p.UserID]; !r.opts.MultiSession && len(existing) > 0 {
		s = existing[len(existing)-1]
		for _, old := range existing[:len(existing)-1] {
			old.mu.Lock()
			if att := old.detachLocked(r.clock.Now()); att != nil {
				superseded = append(superseded, att)
			}
			delete(r.sessions, old.id)
			old.alive = false
			old.stopResumeTimerLocked()
			old.mu.Unlock()
		}
		// Held from reset until READY is queued; READY must be seq 1.
		s.mu.Lock()
		if att := s.detachLocked(r.clock.Now()); att != nil {
			superseded = append(superseded, att)
		}
		delete(r.sessions, s.id)
		s.resetLocked(id, r.opts.ReplayBufferSize)
		r.byUser[p.UserID] = []*Session{s}
	} else {
		s = newSession(id, p.UserID, r.opts.ReplayBufferSize)
		s.mu.Lock()
		r.byUser[p.UserID] = append(r.byUser[p.UserID], s)
	}
	r.sessions[id] = s

	s.client = p.Client
	s.presence = p.Presence
	s.presenceAt = r.clock.Now()
	s.attachLocked(p.Transport, nil, r.onWriteFailure(s))
	_, _ = s.deliverLocked(proto.EventReady, data)
	s.mu.Unlock()
	r.mu.Unlock()

	for _, att := range superseded {
		att.transport.Close(proto.CloseSuperseded, proto.CloseSuperseded.Reason())
	}
	if len(superseded) > 0 {
		r.logger.Info().Str("user_id", p.UserID).Int("superseded", len(superseded)).Msg("session superseded")
	}

	r.updatePresence(ctx, p.UserID)
	return s, nil
}

// Resume reattaches a transport to a session and replays every buffered event
// after p.Seq followed by RESUMED.
func (r *Registry) Resume(ctx context.Context, p ResumeParams) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[p.SessionID]
	if !ok || s.userID != p.UserID {
		r.mu.Unlock()
		return nil, ErrCannotResume
	}

	s.mu.Lock()
	events, ok := s.buffer.since(p.Seq, s.seq)
	if !s.alive || !ok {
		s.mu.Unlock()
		r.mu.Unlock()
		return nil, ErrCannotResume
	}

	previous := s.detachLocked(r.clock.Now())
	frames := make([]*proto.Frame, 0, len(events)+1)
	for _, ev := range events {
		frames = append(frames, proto.NewDispatch(ev.Type, ev.Seq, ev.Data))
	}
	frames = append(frames, proto.NewDispatch(proto.EventResumed, 0, proto.ResumedData{Trace: p.Trace}))
	s.attachLocked(p.Transport, frames, r.onWriteFailure(s))
	s.mu.Unlock()
	r.mu.Unlock()

	if previous != nil {
		previous.transport.Close(proto.CloseSuperseded, proto.CloseSuperseded.Reason())
	}
	r.logger.Debug().Str("session_id", p.SessionID).Str("user_id", p.UserID).
		Int64("seq", p.Seq).Int("replayed", len(events)).Msg("session resumed")

	r.updatePresence(ctx, p.UserID)
	return s, nil
}

// Detach closes t with code and starts the resume window of the session. It
// is a no-op when t is no longer the session's transport.
func (r *Registry) Detach(ctx context.Context, s *Session, t Transport, code proto.CloseCode, reason string) bool {
	r.mu.Lock()
	s.mu.Lock()
	if s.attached == nil || s.attached.transport != t {
		s.mu.Unlock()
		r.mu.Unlock()
		return false
	}
	att := s.detachLocked(r.clock.Now())
	epoch := s.epoch
	id := s.id
	s.resumeTimer = r.clock.AfterFunc(r.opts.ResumeTimeout, func() { r.expire(s, epoch) })
	s.mu.Unlock()
	r.mu.Unlock()

	att.transport.Close(code, reason)

	r.logger.Debug().Str("session_id", id).Str("user_id", s.userID).Int("code", int(code)).Msg("session detached")
	r.updatePresence(ctx, s.userID)
	return true
}

// Terminate closes t and destroys its session immediately, skipping the
// resume window. Used for protocol violations.
func (r *Registry) Terminate(ctx context.Context, s *Session, t Transport, code proto.CloseCode, reason string) bool {
	r.mu.Lock()
	s.mu.Lock()
	if s.attached == nil || s.attached.transport != t {
		s.mu.Unlock()
		r.mu.Unlock()
		return false
	}
	att := s.detachLocked(r.clock.Now())
	s.alive = false
	s.stopResumeTimerLocked()
	id := s.id
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
	r.removeUserSessionLocked(s)
	s.mu.Unlock()
	r.mu.Unlock()

	att.transport.Close(code, reason)

	r.logger.Debug().Str("session_id", id).Str("user_id", s.userID).Int("code", int(code)).Msg("session terminated")
	r.updatePresence(ctx, s.userID)
	return true
}

func (r *Registry) onWriteFailure(s *Session) func(*attachment, error) {
	return func(att *attachment, err error) {
		r.logger.Debug().Err(err).Str("user_id", s.userID).Msg("session write failed")
		code := proto.CloseUnknownError
		if errors.Is(err, errSlowConsumer) {
			code = proto.CloseRateLimited
		}
		r.Detach(context.Background(), s, att.transport, code, code.Reason())
	}
}

// expire destroys a session whose resume window ran out.
func (r *Registry) expire(s *Session, epoch int64) {
	r.mu.Lock()
	s.mu.Lock()
	if s.epoch != epoch || s.attached != nil || !s.alive {
		s.mu.Unlock()
		r.mu.Unlock()
		return
	}
	s.alive = false
	s.resumeTimer = nil
	id := s.id
	if r.sessions[id] == s {
		delete(r.sessions, id)
	}
	r.removeUserSessionLocked(s)
	s.mu.Unlock()
	r.mu.Unlock()

	r.logger.Debug().Str("session_id", id).Str("user_id", s.userID).Msg("session expired")
	r.updatePresence(context.Background(), s.userID)
}

func (r *Registry) removeUserSessionLocked(s *Session) {
	list := r.byUser[s.userID]
	for i, other := range list {
		if other == s {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byUser, s.userID)
		return
	}
	r.byUser[s.userID] = list
}

// SetPresence records the presence chosen on one session and announces the
// resulting aggregate.
func (r *Registry) SetPresence(ctx context.Context, s *Session, p Presence) {
	s.mu.Lock()
	s.presence = p
	s.presenceAt = r.clock.Now()
	s.mu.Unlock()
	r.updatePresence(ctx, s.userID)
}

// Presence returns the user's presence as other users see it.
func (r *Registry) Presence(userID string) Presence {
	var (
		best   Presence
		bestAt time.Time
		found  bool
	)
	for _, s := range r.UserSessions(userID) {
		s.mu.Lock()
		if s.attached != nil && (!found || s.presenceAt.After(bestAt)) {
			best, bestAt, found = s.presence, s.presenceAt, true
		}
		s.mu.Unlock()
	}
	if !found {
		return Offline()
	}
	return best.Visible()
}

// updatePresence announces the user's aggregate presence if it changed.
// Announcements of one user are ordered; other users are not blocked.
func (r *Registry) updatePresence(ctx context.Context, userID string) {
	up := r.lockPresence(userID)
	defer r.unlockPresence(userID, up)

	current := r.Presence(userID)
	if current.Equal(up.announced) {
		return
	}
	up.announced = current

	r.mu.RLock()
	n := r.notifier
	r.mu.RUnlock()
	if n != nil {
		n.PresenceChanged(ctx, userID, current)
	}
}

func (r *Registry) lockPresence(userID string) *userPresence {
	r.presenceMu.Lock()
	up, ok := r.userPresence[userID]
	if !ok {
		up = &userPresence{announced: Offline()}
		r.userPresence[userID] = up
	}
	up.refs++
	r.presenceMu.Unlock()

	up.mu.Lock()
	return up
}

func (r *Registry) unlockPresence(userID string, up *userPresence) {
	offline := up.announced.Status == StatusOffline
	up.mu.Unlock()

	r.presenceMu.Lock()
	up.refs--
	if up.refs == 0 && offline {
		delete(r.userPresence, userID)
	}
	r.presenceMu.Unlock()
}

// Get returns a live session by id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// UserSessions implements Sessions.
func (r *Registry) UserSessions(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byUser[userID]
	out := make([]*Session, len(list))
	copy(out, list)
	return out
}

// UserIDs implements Sessions.
func (r *Registry) UserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// reconnectTimeout bounds the op 7 write sent to each client on shutdown.
const reconnectTimeout = time.Second

// Shutdown asks every attached client to reconnect, closes the transports
// with going-away and forgets all sessions.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	var closing []*attachment
	for _, s := range r.sessions {
		s.mu.Lock()
		if att := s.detachLocked(r.clock.Now()); att != nil {
			closing = append(closing, att)
		}
		s.alive = false
		s.stopResumeTimerLocked()
		s.mu.Unlock()
	}
	r.sessions = make(map[string]*Session)
	r.byUser = make(map[string][]*Session)
	r.mu.Unlock()

	g := new(errgroup.Group)
	for _, att := range closing {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
			defer cancel()
			if err := att.transport.WriteFrame(ctx, proto.NewReconnect()); err != nil {
				r.logger.Debug().Err(err).Msg("write reconnect")
			}
			att.transport.Close(proto.CloseGoingAway, proto.CloseGoingAway.Reason())
			return nil
		})
	}
	_ = g.Wait()
	r.logger.Info().Int("closed", len(closing)).Msg("gateway sessions closed")
}

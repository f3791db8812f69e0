package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/legacy-gateway/internal/auth"
	"github.com/vovakirdan/legacy-gateway/internal/config"
	"github.com/vovakirdan/legacy-gateway/internal/core"
	"github.com/vovakirdan/legacy-gateway/internal/proto"
	"github.com/vovakirdan/legacy-gateway/internal/store"
)

var (
	errMissingRelease    = errors.New("missing release cookie")
	errReleaseNotAllowed = errors.New("release not allowed")
)

// GatewayHandler upgrades gateway connections and drives each one through
// hello, identify or resume, and the heartbeat loop.
type GatewayHandler struct {
	cfg      config.GatewayConfig
	auth     *auth.Service
	registry *core.Registry
	ready    *core.ReadyBuilder
	clock    clock.Clock
	log      *zerolog.Logger
}

// NewGatewayHandler builds the WebSocket gateway handler.
func NewGatewayHandler(
	cfg config.GatewayConfig,
	authService *auth.Service,
	registry *core.Registry,
	ready *core.ReadyBuilder,
	clk clock.Clock,
	logger *zerolog.Logger,
) *GatewayHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &GatewayHandler{
		cfg:      cfg,
		auth:     authService,
		registry: registry,
		ready:    ready,
		clock:    clk,
		log:      logger,
	}
}

func (h *GatewayHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	release, err := h.release(r)
	if err != nil {
		h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("gateway connection rejected")
		stdhttp.Error(w, err.Error(), stdhttp.StatusBadRequest)
		return
	}

	neg, negErr := proto.ParseNegotiation(r.URL.Query())
	if negErr != nil && !errors.Is(negErr, proto.ErrUnsupportedVersion) {
		h.log.Debug().Err(negErr).Str("remote", r.RemoteAddr).Msg("gateway connection rejected")
		stdhttp.Error(w, negErr.Error(), stdhttp.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	if negErr != nil {
		_ = conn.Close(websocket.StatusCode(proto.CloseInvalidVersion), proto.CloseInvalidVersion.Reason())
		return
	}
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	enc := proto.NewEncoder(neg.Compression)
	c := &connection{
		h:         h,
		conn:      conn,
		enc:       enc,
		transport: newWSTransport(conn, enc),
		release:   release,
		version:   neg.Version,
		limiter:   newRateLimiter(h.clock, h.cfg.RateLimitPerMinute, time.Minute),
		log: h.log.With().
			Str("remote", r.RemoteAddr).
			Str("release", release.Raw).
			Int("v", neg.Version).
			Logger(),
	}
	c.serve(r.Context())
}

// release reads and validates the client build identifier.
func (h *GatewayHandler) release(r *stdhttp.Request) (proto.Release, error) {
	cookie, err := r.Cookie(h.cfg.ReleaseCookie)
	if err != nil || cookie.Value == "" {
		return proto.Release{}, errMissingRelease
	}
	rel, err := proto.ParseRelease(cookie.Value)
	if err != nil {
		return proto.Release{}, err
	}
	if len(h.cfg.AllowedReleases) == 0 {
		return rel, nil
	}
	for _, allowed := range h.cfg.AllowedReleases {
		if strings.EqualFold(allowed, rel.Raw) {
			return rel, nil
		}
	}
	return proto.Release{}, fmt.Errorf("%w: %q", errReleaseNotAllowed, rel.Raw)
}

// connection is one gateway WebSocket. Frames are read on the serve
// goroutine; the session's writer and the heartbeat timer run elsewhere.
type connection struct {
	h         *GatewayHandler
	conn      *websocket.Conn
	enc       *proto.Encoder
	transport *wsTransport
	release   proto.Release
	version   int
	limiter   *rateLimiter
	heartbeat *core.Heartbeat
	log       zerolog.Logger

	mu      sync.Mutex
	session *core.Session
}

func (c *connection) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeout := c.h.cfg.HeartbeatInterval + c.h.cfg.HeartbeatGrace
	c.heartbeat = core.NewHeartbeat(c.h.clock, timeout, c.onHeartbeatTimeout)
	defer c.heartbeat.Stop()

	hello := proto.NewHello(c.h.cfg.HeartbeatInterval.Milliseconds(), c.h.ready.Trace())
	if err := c.transport.WriteFrame(ctx, hello); err != nil {
		c.log.Debug().Err(err).Msg("write hello")
		c.transport.Close(proto.CloseUnknownError, proto.CloseUnknownError.Reason())
		return
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.disconnected(context.WithoutCancel(ctx), err)
			return
		}
		if !c.limiter.allow() {
			c.fail(ctx, proto.NewCloseError(proto.CloseRateLimited, ""))
			return
		}
		if cerr := c.handle(ctx, data); cerr != nil {
			c.fail(ctx, cerr)
			return
		}
	}
}

func (c *connection) currentSession() *core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *connection) setSession(s *core.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *connection) handle(ctx context.Context, data []byte) *proto.CloseError {
	in, err := proto.DecodeInbound(data)
	if err != nil {
		return asCloseError(err)
	}

	switch in.Op {
	case proto.OpHeartbeat:
		c.heartbeat.Beat()
		c.write(ctx, proto.NewHeartbeatAck())
		return nil
	case proto.OpIdentify:
		return c.identify(ctx, in)
	case proto.OpResume:
		return c.resume(ctx, in)
	}

	s := c.currentSession()
	if s == nil {
		return proto.NewCloseError(proto.CloseNotAuthenticated, "")
	}

	switch in.Op {
	case proto.OpPresenceUpdate:
		return c.presenceUpdate(ctx, s, in)
	case proto.OpRequestGuildMembers:
		return c.requestGuildMembers(ctx, s, in)
	case proto.OpVoiceStateUpdate, proto.OpGuildSync, proto.OpCallConnect, proto.OpLazyRequest:
		c.log.Debug().Int("op", int(in.Op)).Msg("ignoring op")
		return nil
	default:
		return proto.NewCloseError(proto.CloseUnknownOpcode, "")
	}
}

func (c *connection) identify(ctx context.Context, in *proto.Inbound) *proto.CloseError {
	if c.currentSession() != nil {
		return proto.NewCloseError(proto.CloseAlreadyAuthed, "")
	}

	var d proto.IdentifyData
	if err := proto.DecodeData(in, &d); err != nil {
		return asCloseError(err)
	}

	account, cerr := c.authenticate(ctx, d.Token)
	if cerr != nil {
		return cerr
	}

	presence := core.Presence{Status: core.StatusOnline}
	if st, ok := core.ParseStatus(account.Settings.Status); ok && st != core.StatusOffline {
		presence.Status = st
	}
	if d.Presence != nil {
		p, err := core.ParsePresence(d.Presence)
		if err != nil {
			c.log.Debug().Err(err).Msg("ignoring identify presence")
		} else {
			presence = p
		}
	}

	c.enc.SetPayloadCompression(d.Compress)
	client := core.ClientInfo{Release: c.release, Version: c.version, Properties: d.Properties}

	s, err := c.h.registry.Identify(ctx, core.IdentifyParams{
		UserID:    account.ID,
		Transport: c.transport,
		Client:    client,
		Presence:  presence,
	}, func(sessionID string) (any, error) {
		return c.h.ready.Build(ctx, account, sessionID, client)
	})
	if err != nil {
		c.log.Error().Err(err).Str("user_id", account.ID).Msg("identify failed")
		return proto.NewCloseError(proto.CloseUnknownError, "")
	}

	c.setSession(s)
	c.log = c.log.With().Str("session_id", s.ID()).Str("user_id", account.ID).Logger()
	c.log.Info().Msg("session identified")
	return nil
}

func (c *connection) resume(ctx context.Context, in *proto.Inbound) *proto.CloseError {
	if c.currentSession() != nil {
		return proto.NewCloseError(proto.CloseAlreadyAuthed, "")
	}

	var d proto.ResumeData
	if err := proto.DecodeData(in, &d); err != nil {
		return asCloseError(err)
	}

	account, cerr := c.authenticate(ctx, d.Token)
	if cerr != nil {
		return cerr
	}

	s, err := c.h.registry.Resume(ctx, core.ResumeParams{
		SessionID: d.SessionID,
		UserID:    account.ID,
		Seq:       d.Seq,
		Transport: c.transport,
		Trace:     c.h.ready.Trace(),
	})
	if errors.Is(err, core.ErrCannotResume) {
		c.log.Debug().Str("session_id", d.SessionID).Int64("seq", d.Seq).Msg("cannot resume")
		c.write(ctx, proto.NewInvalidSession(false))
		return nil
	}
	if err != nil {
		c.log.Error().Err(err).Str("session_id", d.SessionID).Msg("resume failed")
		return proto.NewCloseError(proto.CloseUnknownError, "")
	}

	c.setSession(s)
	c.log = c.log.With().Str("session_id", s.ID()).Str("user_id", account.ID).Logger()
	c.log.Info().Int64("seq", d.Seq).Msg("session resumed")
	return nil
}

func (c *connection) authenticate(ctx context.Context, token string) (*store.Account, *proto.CloseError) {
	account, err := c.h.auth.AccountByToken(ctx, token)
	if errors.Is(err, auth.ErrInvalidToken) {
		c.log.Debug().Err(err).Msg("authentication failed")
		return nil, proto.NewCloseError(proto.CloseAuthFailed, "")
	}
	if err != nil {
		c.log.Error().Err(err).Msg("load account")
		return nil, proto.NewCloseError(proto.CloseUnknownError, "")
	}
	return account, nil
}

func (c *connection) presenceUpdate(ctx context.Context, s *core.Session, in *proto.Inbound) *proto.CloseError {
	var d proto.PresenceUpdateData
	if err := proto.DecodeData(in, &d); err != nil {
		return asCloseError(err)
	}
	p, err := core.ParsePresence(&d)
	if err != nil {
		c.log.Debug().Err(err).Str("status", d.Status).Msg("ignoring presence update")
		return nil
	}
	c.h.registry.SetPresence(ctx, s, p)
	return nil
}

func (c *connection) requestGuildMembers(ctx context.Context, s *core.Session, in *proto.Inbound) *proto.CloseError {
	var d proto.RequestGuildMembersData
	if err := proto.DecodeData(in, &d); err != nil {
		return asCloseError(err)
	}
	guildIDs, err := d.GuildIDs()
	if err != nil {
		return proto.NewCloseError(proto.CloseDecodeError, "invalid guild_id")
	}

	for _, guildID := range guildIDs {
		chunk, err := c.h.ready.MembersChunk(ctx, guildID, s.UserID(), d.Query, d.Limit)
		if err != nil {
			c.log.Debug().Err(err).Str("guild_id", guildID).Msg("skipping member request")
			continue
		}
		if _, err := s.Deliver(proto.EventGuildMembersChunk, chunk); err != nil {
			return nil
		}
	}
	return nil
}

// write sends a frame outside the session sequence. A failed write surfaces
// as a read error on the serve loop.
func (c *connection) write(ctx context.Context, f *proto.Frame) {
	if err := c.transport.WriteFrame(ctx, f); err != nil {
		c.log.Debug().Err(err).Int("op", int(f.Op)).Msg("write frame")
	}
}

// fail closes the connection for a protocol violation. Rate-limited sessions
// stay resumable; every other violation destroys the session.
func (c *connection) fail(ctx context.Context, cerr *proto.CloseError) {
	c.log.Debug().Int("code", int(cerr.Code)).Str("reason", cerr.Reason).Msg("closing gateway connection")
	if s := c.currentSession(); s != nil {
		if cerr.Code == proto.CloseRateLimited {
			c.h.registry.Detach(ctx, s, c.transport, cerr.Code, cerr.Reason)
		} else {
			c.h.registry.Terminate(ctx, s, c.transport, cerr.Code, cerr.Reason)
		}
	}
	c.transport.Close(cerr.Code, cerr.Reason)
}

// disconnected handles transport loss. The session enters its resume window
// unless this transport was already replaced.
func (c *connection) disconnected(ctx context.Context, err error) {
	status := websocket.CloseStatus(err)
	c.log.Debug().Err(err).Int("status", int(status)).Msg("gateway connection closed")

	if s := c.currentSession(); s != nil {
		c.h.registry.Detach(ctx, s, c.transport, proto.CloseNormal, proto.CloseNormal.Reason())
	}
	c.transport.Close(proto.CloseNormal, proto.CloseNormal.Reason())
}

func (c *connection) onHeartbeatTimeout() {
	code := proto.CloseSessionTimeout
	if s := c.currentSession(); s != nil {
		c.h.log.Info().Str("session_id", s.ID()).Str("user_id", s.UserID()).Msg("heartbeat timed out")
		c.h.registry.Detach(context.Background(), s, c.transport, code, code.Reason())
	}
	c.transport.Close(code, code.Reason())
}

func asCloseError(err error) *proto.CloseError {
	var cerr *proto.CloseError
	if errors.As(err, &cerr) {
		return cerr
	}
	return proto.NewCloseError(proto.CloseDecodeError, "")
}

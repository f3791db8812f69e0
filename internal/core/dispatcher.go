package core

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/legacy-gateway/internal/store"
)

// Store is the read-only data access the gateway core needs.
type Store interface {
	GetAccountByID(ctx context.Context, id string) (*store.Account, error)
	GetUsersGuilds(ctx context.Context, userID string) ([]*store.Guild, error)
	GetGuildByID(ctx context.Context, id string) (*store.Guild, error)
	GetChannelByID(ctx context.Context, id string) (*store.Channel, error)
	GetPrivateChannels(ctx context.Context, userID string) ([]*store.Channel, error)
	GetAcknowledgements(ctx context.Context, userID string) ([]*store.Acknowledgement, error)
	GetLatestAcknowledgement(ctx context.Context, userID, channelID string) (*store.Acknowledgement, error)
}

// Dispatcher turns one event into personalized deliveries to every session
// of the targeted users.
type Dispatcher struct {
	sessions    Sessions
	store       Store
	concurrency int
	logger      *zerolog.Logger
}

// NewDispatcher creates a dispatcher; concurrency bounds parallel deliveries.
func NewDispatcher(sessions Sessions, st Store, concurrency int, logger *zerolog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 32
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{sessions: sessions, store: st, concurrency: concurrency, logger: logger}
}

// Dispatch delivers eventType to every session of the target's users and
// returns how many sessions received it. It returns once every delivery is
// sequenced, so consecutive calls reach each session in call order. A failing
// recipient never aborts the others.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, p Personalizer, target Target) (int, error) {
	userIDs, err := target.users(ctx, d)
	if err != nil {
		return 0, err
	}

	var delivered atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(d.concurrency)

	for _, userID := range userIDs {
		for _, s := range d.sessions.UserSessions(userID) {
			g.Go(func() error {
				r := Recipient{UserID: s.UserID(), SessionID: s.ID(), Client: s.Client()}
				data, ok := p.Personalize(r)
				if !ok {
					return nil
				}
				if _, err := s.Deliver(eventType, data); err != nil {
					d.logger.Debug().Err(err).Str("session_id", r.SessionID).Str("event", eventType).Msg("delivery skipped")
					return nil
				}
				delivered.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	n := int(delivered.Load())
	d.logger.Trace().Str("event", eventType).Int("users", len(userIDs)).Int("sessions", n).Msg("dispatched")
	return n, nil
}

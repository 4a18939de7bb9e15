package channel

import (
	"context"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// Noop is the channel used when no transport is configured. The session
// runs on local state only.
type Noop struct{}

func (Noop) Join(ctx context.Context, gameID, self string, handler Handler) (Subscription, error) {
	return noopSub{}, nil
}

type noopSub struct{}

func (noopSub) Broadcast(context.Context, events.Message) error      { return nil }
func (noopSub) Track(context.Context, models.LobbyParticipant) error { return nil }
func (noopSub) Heartbeat(context.Context) error                      { return nil }
func (noopSub) Untrack(context.Context) error                        { return nil }
func (noopSub) Close() error                                         { return nil }

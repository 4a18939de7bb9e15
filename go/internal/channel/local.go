package channel

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

const defaultInboxSize = 256

// LocalHub is an in-process Channel. Every payload goes through the wire
// codec so local and NATS peers see identical bytes.
type LocalHub struct {
	mu        sync.RWMutex
	clock     clockwork.Clock
	inboxSize int
	games     map[string]map[*localSub]struct{}
}

type LocalOption func(*LocalHub)

func WithClock(clock clockwork.Clock) LocalOption {
	return func(h *LocalHub) { h.clock = clock }
}

func WithInboxSize(n int) LocalOption {
	return func(h *LocalHub) {
		if n > 0 {
			h.inboxSize = n
		}
	}
}

func NewLocalHub(opts ...LocalOption) *LocalHub {
	h := &LocalHub{
		clock:     clockwork.NewRealClock(),
		inboxSize: defaultInboxSize,
		games:     make(map[string]map[*localSub]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *LocalHub) Join(ctx context.Context, gameID, self string, handler Handler) (Subscription, error) {
	sub := &localSub{
		hub:     h,
		gameID:  gameID,
		self:    self,
		handler: handler,
		inbox:   make(chan func(), h.inboxSize),
		done:    make(chan struct{}),
		track:   &tracking{clock: h.clock, gameID: gameID},
	}
	go sub.run()

	h.mu.Lock()
	subs, ok := h.games[gameID]
	if !ok {
		subs = make(map[*localSub]struct{})
		h.games[gameID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	log.Debug().Str("game_id", gameID).Str("sender", self).Msg("joined local channel")

	h.presence(gameID, syncRequest(gameID, self, h.clock.Now()))
	return sub, nil
}

// Publish fans a committed row change out to every subscriber of its game.
func (h *LocalHub) Publish(ctx context.Context, rc events.RowChange) error {
	data, err := events.EncodeRowChange(rc)
	if err != nil {
		return err
	}
	for _, sub := range h.subscribers(rc.GameID) {
		decoded, err := events.DecodeRowChange(data)
		if err != nil {
			return err
		}
		sub.enqueue(func() { sub.handler.HandleRowChange(decoded) })
	}
	return nil
}

// Subscribers reports how many clients are joined to a game.
func (h *LocalHub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

func (h *LocalHub) subscribers(gameID string) []*localSub {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*localSub, 0, len(h.games[gameID]))
	for sub := range h.games[gameID] {
		out = append(out, sub)
	}
	return out
}

func (h *LocalHub) broadcast(from *localSub, data []byte) {
	for _, sub := range h.subscribers(from.gameID) {
		if sub == from {
			continue
		}
		env, msg, err := events.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("game_id", from.gameID).Msg("dropping broadcast")
			continue
		}
		sub.enqueue(func() { sub.handler.HandleMessage(env, msg) })
	}
}

func (h *LocalHub) presence(gameID string, ev events.PresenceEvent) {
	data, err := events.EncodePresence(ev)
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID).Msg("failed to encode presence")
		return
	}
	for _, sub := range h.subscribers(gameID) {
		decoded, err := events.DecodePresence(data)
		if err != nil {
			log.Warn().Err(err).Str("game_id", gameID).Msg("dropping presence")
			return
		}
		sub.enqueue(func() { sub.onPresence(decoded) })
	}
}

func (h *LocalHub) leave(sub *localSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.games[sub.gameID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.games, sub.gameID)
	}
}

type localSub struct {
	hub     *LocalHub
	gameID  string
	self    string
	handler Handler
	track   *tracking

	inbox     chan func()
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func (s *localSub) run() {
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.done:
			return
		}
	}
}

// enqueue drops the delivery when the inbox is full. Peers recover from the
// row change stream.
func (s *localSub) enqueue(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.inbox <- fn:
	default:
		log.Warn().Str("game_id", s.gameID).Str("sender", s.self).Msg("subscriber inbox full, dropping delivery")
	}
}

func (s *localSub) onPresence(ev events.PresenceEvent) {
	if ev.Kind == events.PresenceSync {
		if ev.Participant.ID != s.self {
			if again, ok := s.track.current(events.PresenceTrack); ok {
				s.hub.presence(s.gameID, again)
			}
		}
		return
	}
	s.handler.HandlePresence(ev)
}

func (s *localSub) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *localSub) Broadcast(ctx context.Context, msg events.Message) error {
	if s.isClosed() {
		return ErrClosed
	}
	data, err := events.Encode(s.gameID, s.self, msg, s.hub.clock.Now())
	if err != nil {
		return err
	}
	s.hub.broadcast(s, data)
	return nil
}

func (s *localSub) Track(ctx context.Context, p models.LobbyParticipant) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.hub.presence(s.gameID, s.track.track(p))
	return nil
}

func (s *localSub) Heartbeat(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if ev, ok := s.track.current(events.PresenceHeartbeat); ok {
		s.hub.presence(s.gameID, ev)
	}
	return nil
}

func (s *localSub) Untrack(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if ev, ok := s.track.untrack(); ok {
		s.hub.presence(s.gameID, ev)
	}
	return nil
}

func (s *localSub) Close() error {
	s.closeOnce.Do(func() {
		if ev, ok := s.track.untrack(); ok {
			s.hub.presence(s.gameID, ev)
		}
		s.hub.leave(s)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

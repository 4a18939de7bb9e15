package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// NATSConfig holds connection settings for the NATS transport.
type NATSConfig struct {
	URL           string
	StreamName    string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    streamName,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSChannel carries broadcast and presence on core NATS subjects and reads
// row changes from the JetStream change stream.
type NATSChannel struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config NATSConfig
	clock  clockwork.Clock
}

func NewNATSChannel(config NATSConfig) (*NATSChannel, error) {
	opts := []nats.Option{
		nats.Name("thirty-game-channel"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if config.StreamName == "" {
		config.StreamName = streamName
	}

	return &NATSChannel{
		nc:     nc,
		js:     js,
		config: config,
		clock:  clockwork.NewRealClock(),
	}, nil
}

func (c *NATSChannel) Join(ctx context.Context, gameID, self string, handler Handler) (Subscription, error) {
	if !models.ValidGameID(gameID) {
		return nil, fmt.Errorf("join %q: %w", gameID, models.ErrInvalidGameID)
	}
	sub := &natsSub{
		channel: c,
		gameID:  gameID,
		self:    self,
		handler: handler,
		track:   &tracking{clock: c.clock, gameID: gameID},
	}

	broadcast, err := c.nc.Subscribe(BroadcastSubject(gameID), sub.onBroadcast)
	if err != nil {
		return nil, fmt.Errorf("subscribe broadcast: %w", err)
	}
	presence, err := c.nc.Subscribe(PresenceSubject(gameID), sub.onPresence)
	if err != nil {
		broadcast.Unsubscribe()
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}
	sub.subs = []*nats.Subscription{broadcast, presence}

	if err := sub.consumeChanges(ctx); err != nil {
		// Without the change stream the client still converges through
		// broadcasts and its own read-backs.
		log.Warn().Err(err).Str("game_id", gameID).Msg("row change stream unavailable")
	}

	if err := sub.publishPresence(syncRequest(gameID, self, c.clock.Now())); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("failed to request presence sync")
	}

	log.Info().Str("game_id", gameID).Str("sender", self).Msg("joined NATS channel")
	return sub, nil
}

// Ready reports whether the connection is usable.
func (c *NATSChannel) Ready() bool {
	return c.nc != nil && c.nc.IsConnected()
}

func (c *NATSChannel) Close() {
	if c.nc != nil {
		c.nc.Close()
	}
}

type natsSub struct {
	channel *NATSChannel
	gameID  string
	self    string
	handler Handler
	track   *tracking

	mu       sync.Mutex
	subs     []*nats.Subscription
	consumer jetstream.ConsumeContext
	closed   bool
}

func (s *natsSub) consumeChanges(ctx context.Context) error {
	cons, err := s.channel.js.OrderedConsumer(ctx, s.channel.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ChangeFilter(s.gameID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		rc, err := events.DecodeRowChange(msg.Data())
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping row change")
			return
		}
		s.handler.HandleRowChange(rc)
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	s.consumer = cc
	return nil
}

func (s *natsSub) onBroadcast(msg *nats.Msg) {
	if msg.Header.Get(senderHeader) == s.self {
		return
	}
	env, m, err := events.Decode(msg.Data)
	if err != nil {
		log.Warn().Err(err).Str("game_id", s.gameID).Msg("dropping broadcast")
		return
	}
	if env.Sender == s.self {
		return
	}
	s.handler.HandleMessage(env, m)
}

func (s *natsSub) onPresence(msg *nats.Msg) {
	ev, err := events.DecodePresence(msg.Data)
	if err != nil {
		log.Warn().Err(err).Str("game_id", s.gameID).Msg("dropping presence")
		return
	}
	if ev.Kind == events.PresenceSync {
		if ev.Participant.ID != s.self {
			if again, ok := s.track.current(events.PresenceTrack); ok {
				if err := s.publishPresence(again); err != nil {
					log.Warn().Err(err).Str("game_id", s.gameID).Msg("failed to answer presence sync")
				}
			}
		}
		return
	}
	s.handler.HandlePresence(ev)
}

func (s *natsSub) publishPresence(ev events.PresenceEvent) error {
	data, err := events.EncodePresence(ev)
	if err != nil {
		return err
	}
	return s.channel.nc.Publish(PresenceSubject(s.gameID), data)
}

func (s *natsSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *natsSub) Broadcast(ctx context.Context, msg events.Message) error {
	if s.isClosed() {
		return ErrClosed
	}
	data, err := events.Encode(s.gameID, s.self, msg, s.channel.clock.Now())
	if err != nil {
		return err
	}
	out := &nats.Msg{
		Subject: BroadcastSubject(s.gameID),
		Data:    data,
		Header:  nats.Header{},
	}
	out.Header.Set(senderHeader, s.self)
	out.Header.Set("Event-Type", string(msg.Type()))
	if err := s.channel.nc.PublishMsg(out); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

func (s *natsSub) Track(ctx context.Context, p models.LobbyParticipant) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.publishPresence(s.track.track(p))
}

func (s *natsSub) Heartbeat(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if ev, ok := s.track.current(events.PresenceHeartbeat); ok {
		return s.publishPresence(ev)
	}
	return nil
}

func (s *natsSub) Untrack(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if ev, ok := s.track.untrack(); ok {
		return s.publishPresence(ev)
	}
	return nil
}

func (s *natsSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subs
	consumer := s.consumer
	s.mu.Unlock()

	var errs []error
	if ev, ok := s.track.untrack(); ok {
		if err := s.publishPresence(ev); err != nil {
			errs = append(errs, err)
		}
	}
	if consumer != nil {
		consumer.Stop()
	}
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package changefeed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/channel"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
)

// Publisher hands a resolved row change to subscribers.
type Publisher interface {
	Publish(ctx context.Context, rc events.RowChange) error
}

type JetStreamConfig struct {
	URL             string
	StreamName      string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      channel.StreamName(),
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// JetStreamPublisher writes row changes to the change stream. The outbox id
// is the message id, so a change republished after a crash is dropped by
// the stream's duplicate window.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("thirty-change-relay"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
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

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Committed game row changes",
		Subjects:    channel.ChangesStreamSubjects(),
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DuplicateWindow,
	}

	stream, err := p.js.CreateOrUpdateStream(ctx, sc)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Strs("subjects", sc.Subjects).
		Msg("change stream ready")
	return nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, rc events.RowChange) error {
	data, err := events.EncodeRowChange(rc)
	if err != nil {
		return fmt.Errorf("encode row change: %w", err)
	}

	msgID := strconv.FormatInt(rc.ChangeID, 10)
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: channel.ChangeSubject(rc.GameID, rc.Table, rc.RowID),
		Data:    data,
		Header: nats.Header{
			"Game-ID":   []string{rc.GameID},
			"Change-ID": []string{msgID},
			"Table":     []string{string(rc.Table)},
		},
	}, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish row change: %w", err)
	}

	log.Debug().
		Str("game_id", rc.GameID).
		Int64("change_id", rc.ChangeID).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("row change published")
	return nil
}

// Ready reports whether the NATS connection is up.
func (p *JetStreamPublisher) Ready() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}

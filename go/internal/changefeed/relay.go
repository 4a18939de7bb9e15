// Package changefeed relays committed game rows from the Postgres outbox to
// the JetStream change stream that every session subscribes to.
package changefeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/db"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
)

// Source is the outbox table.
type Source interface {
	FetchChangeByID(ctx context.Context, id int64) (db.GameChangeOutbox, error)
	FetchUnsentChanges(ctx context.Context, limit int32) ([]db.GameChangeOutbox, error)
	MarkChangeSent(ctx context.Context, id int64) error
	CountPendingChanges(ctx context.Context) (int64, error)
}

// Resolver reads the row an outbox entry points at.
type Resolver interface {
	RowChange(ctx context.Context, change db.GameChangeOutbox) (events.RowChange, error)
}

type Config struct {
	DatabaseURL      string
	NotifyChannel    string
	FallbackInterval time.Duration
	PingInterval     time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	BatchSize        int32
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:    "thirty_row_changes",
		FallbackInterval: 5 * time.Second,
		PingInterval:     90 * time.Second,
		MaxRetries:       3,
		RetryDelay:       200 * time.Millisecond,
		BatchSize:        100,
	}
}

// Relay publishes each outbox entry once it is notified of it, and sweeps
// for anything a lost notification left behind.
type Relay struct {
	source    Source
	resolver  Resolver
	publisher Publisher
	cfg       Config
	clock     clockwork.Clock

	listener *pq.Listener
	notify   <-chan *pq.Notification

	mu         sync.Mutex
	running    bool
	relayed    uint64
	lastChange time.Time
}

func NewRelay(source Source, resolver Resolver, publisher Publisher, cfg Config, clock clockwork.Clock) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = DefaultConfig().FallbackInterval
	}
	return &Relay{
		source:    source,
		resolver:  resolver,
		publisher: publisher,
		cfg:       cfg,
		clock:     clock,
	}
}

// Listen opens the LISTEN connection. Without it the relay only polls.
func (r *Relay) Listen() error {
	l := pq.NewListener(
		r.cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(r.cfg.NotifyChannel); err != nil {
		l.Close()
		return fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", r.cfg.NotifyChannel).Msg("listening for row changes")
	r.listener = l
	r.notify = l.Notify
	return nil
}

// Run relays until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	r.setRunning(true)
	defer r.setRunning(false)

	log.Info().
		Str("channel", r.cfg.NotifyChannel).
		Dur("fallback_interval", r.cfg.FallbackInterval).
		Bool("notify", r.notify != nil).
		Msg("change relay started")

	fallback := r.clock.NewTicker(r.cfg.FallbackInterval)
	defer fallback.Stop()

	var ping <-chan time.Time
	if r.listener != nil && r.cfg.PingInterval > 0 {
		pingTicker := r.clock.NewTicker(r.cfg.PingInterval)
		defer pingTicker.Stop()
		ping = pingTicker.Chan()
	}

	if _, err := r.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent changes")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("change relay shutting down")
			return r.Stop()
		case note := <-r.notify:
			if note == nil {
				// The listener reconnected; anything sent meanwhile is
				// picked up by the sweep.
				continue
			}
			if err := r.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallback.Chan():
			if _, err := r.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent changes")
			}
		case <-ping:
			if err := r.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (r *Relay) Stop() error {
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// Stats returns how many changes were relayed and when the last one went out.
func (r *Relay) Stats() (uint64, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relayed, r.lastChange
}

func (r *Relay) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Relay) setRunning(v bool) {
	r.mu.Lock()
	r.running = v
	r.mu.Unlock()
}

// handleNotification relays the outbox entry named by the payload. An entry
// already swept is not found and skipped.
func (r *Relay) handleNotification(ctx context.Context, extra string) error {
	id, err := strconv.ParseInt(extra, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid change id in notification %q: %w", extra, err)
	}

	change, err := r.source.FetchChangeByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug().Int64("change_id", id).Msg("change already relayed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch change %d: %w", id, err)
	}
	return r.relay(ctx, change)
}

// processUnsent relays one batch of pending entries in id order.
func (r *Relay) processUnsent(ctx context.Context) (int, error) {
	pending, err := r.source.FetchUnsentChanges(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent changes: %w", err)
	}

	sent := 0
	for _, change := range pending {
		if err := r.relay(ctx, change); err != nil {
			log.Error().Err(err).Int64("change_id", change.ID).Msg("failed to relay change")
			continue
		}
		sent++
	}
	if len(pending) > 0 {
		log.Debug().Int("pending", len(pending)).Int("sent", sent).Msg("swept outbox")
	}
	return sent, nil
}

func (r *Relay) relay(ctx context.Context, change db.GameChangeOutbox) error {
	rc, err := r.resolver.RowChange(ctx, change)
	if errors.Is(err, sql.ErrNoRows) {
		// The row is gone; nothing left to deliver.
		log.Warn().Int64("change_id", change.ID).Str("table", change.TableName).Msg("changed row no longer exists")
		return r.source.MarkChangeSent(ctx, change.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve change %d: %w", change.ID, err)
	}

	if err := r.publishWithRetry(ctx, rc); err != nil {
		return err
	}
	if err := r.source.MarkChangeSent(ctx, change.ID); err != nil {
		return fmt.Errorf("failed to mark change %d sent: %w", change.ID, err)
	}

	r.mu.Lock()
	r.relayed++
	r.lastChange = r.clock.Now()
	r.mu.Unlock()

	log.Debug().
		Int64("change_id", change.ID).
		Str("game_id", change.GameID).
		Str("table", change.TableName).
		Msg("relayed row change")
	return nil
}

func (r *Relay) publishWithRetry(ctx context.Context, rc events.RowChange) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, rc); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int64("change_id", rc.ChangeID).
				Msg("failed to publish, retrying")
			continue
		}
		if attempt > 0 {
			log.Info().Int("attempt", attempt+1).Int64("change_id", rc.ChangeID).Msg("publish succeeded after retry")
		}
		return nil
	}
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

package changefeed

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/channel"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/db"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

type fakeSource struct {
	mu      sync.Mutex
	changes map[int64]db.GameChangeOutbox
}

func newFakeSource(changes ...db.GameChangeOutbox) *fakeSource {
	s := &fakeSource{changes: make(map[int64]db.GameChangeOutbox)}
	for _, c := range changes {
		s.add(c)
	}
	return s
}

func (s *fakeSource) add(c db.GameChangeOutbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes[c.ID] = c
}

func (s *fakeSource) FetchChangeByID(ctx context.Context, id int64) (db.GameChangeOutbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.changes[id]
	if !ok || c.SentAt.Valid {
		return db.GameChangeOutbox{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *fakeSource) FetchUnsentChanges(ctx context.Context, limit int32) ([]db.GameChangeOutbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.GameChangeOutbox
	for _, c := range s.changes {
		if !c.SentAt.Valid {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeSource) MarkChangeSent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.changes[id]
	c.SentAt = sql.NullTime{Time: time.Now(), Valid: true}
	s.changes[id] = c
	return nil
}

func (s *fakeSource) CountPendingChanges(ctx context.Context) (int64, error) {
	pending, err := s.FetchUnsentChanges(ctx, 1<<30)
	return int64(len(pending)), err
}

func (s *fakeSource) sent(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes[id].SentAt.Valid
}

type fakeResolver struct {
	missing map[int64]bool
}

func (r fakeResolver) RowChange(ctx context.Context, change db.GameChangeOutbox) (events.RowChange, error) {
	if r.missing[change.ID] {
		return events.RowChange{}, sql.ErrNoRows
	}
	return events.RowChange{
		ChangeID:  change.ID,
		GameID:    change.GameID,
		Table:     events.RowTable(change.TableName),
		Operation: change.Operation,
		RowID:     change.RowID,
		Patch:     models.GameStatePatch{HostName: models.Ptr("host")},
	}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []int64
	failures  int
	ready     bool
}

func (p *fakePublisher) Publish(ctx context.Context, rc events.RowChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures != 0 {
		if p.failures > 0 {
			p.failures--
		}
		return errors.New("nats: timeout")
	}
	p.published = append(p.published, rc.ChangeID)
	return nil
}

func (p *fakePublisher) Ready() bool {
	return p.ready
}

func (p *fakePublisher) ids() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.published...)
}

func change(id int64) db.GameChangeOutbox {
	return db.GameChangeOutbox{
		ID:        id,
		GameID:    "ABC123",
		TableName: string(events.TableGames),
		RowID:     "ABC123",
		Operation: "UPDATE",
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	cfg.MaxRetries = 1
	return cfg
}

func TestProcessUnsentRelaysInOrder(t *testing.T) {
	source := newFakeSource(change(3), change(1), change(2))
	pub := &fakePublisher{}
	relay := NewRelay(source, fakeResolver{}, pub, testConfig(), clockwork.NewRealClock())

	sent, err := relay.processUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []int64{1, 2, 3}, pub.ids())
	for _, id := range []int64{1, 2, 3} {
		assert.True(t, source.sent(id))
	}

	relayed, last := relay.Stats()
	assert.Equal(t, uint64(3), relayed)
	assert.False(t, last.IsZero())
}

func TestProcessUnsentRespectsBatchSize(t *testing.T) {
	source := newFakeSource(change(1), change(2), change(3))
	cfg := testConfig()
	cfg.BatchSize = 2
	relay := NewRelay(source, fakeResolver{}, &fakePublisher{}, cfg, nil)

	sent, err := relay.processUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.False(t, source.sent(3))
}

func TestHandleNotification(t *testing.T) {
	source := newFakeSource(change(7))
	pub := &fakePublisher{}
	relay := NewRelay(source, fakeResolver{}, pub, testConfig(), nil)
	ctx := context.Background()

	require.NoError(t, relay.handleNotification(ctx, "7"))
	assert.Equal(t, []int64{7}, pub.ids())

	// Already swept.
	require.NoError(t, relay.handleNotification(ctx, "7"))
	assert.Len(t, pub.ids(), 1)

	assert.Error(t, relay.handleNotification(ctx, "not-a-number"))
}

func TestPublishFailureLeavesChangePending(t *testing.T) {
	source := newFakeSource(change(1))
	pub := &fakePublisher{failures: -1}
	relay := NewRelay(source, fakeResolver{}, pub, testConfig(), nil)

	sent, err := relay.processUnsent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.False(t, source.sent(1))
}

func TestPublishRetries(t *testing.T) {
	source := newFakeSource(change(1))
	pub := &fakePublisher{failures: 1}
	relay := NewRelay(source, fakeResolver{}, pub, testConfig(), nil)

	sent, err := relay.processUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, source.sent(1))
}

func TestMissingRowIsMarkedSent(t *testing.T) {
	source := newFakeSource(change(4))
	pub := &fakePublisher{}
	relay := NewRelay(source, fakeResolver{missing: map[int64]bool{4: true}}, pub, testConfig(), nil)

	_, err := relay.processUnsent(context.Background())
	require.NoError(t, err)
	assert.True(t, source.sent(4))
	assert.Empty(t, pub.ids())
}

func TestRunSweepsAndHandlesNotifications(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newFakeSource(change(1))
	pub := &fakePublisher{}
	cfg := testConfig()
	relay := NewRelay(source, fakeResolver{}, pub, cfg, clock)

	notify := make(chan *pq.Notification, 1)
	relay.notify = notify

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return source.sent(1) }, time.Second, 5*time.Millisecond)
	assert.True(t, relay.Running())

	source.add(change(2))
	notify <- &pq.Notification{Channel: cfg.NotifyChannel, Extra: "2"}
	require.Eventually(t, func() bool { return source.sent(2) }, time.Second, 5*time.Millisecond)

	source.add(change(3))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(cfg.FallbackInterval)
	require.Eventually(t, func() bool { return source.sent(3) }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, relay.Running())
	assert.Equal(t, []int64{1, 2, 3}, pub.ids())
}

type rowRecorder struct {
	mu      sync.Mutex
	changes []events.RowChange
}

func (r *rowRecorder) HandleMessage(env events.Envelope, msg events.Message) {}

func (r *rowRecorder) HandlePresence(ev events.PresenceEvent) {}

func (r *rowRecorder) HandleRowChange(rc events.RowChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, rc)
}

func (r *rowRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func TestRelayIntoLocalHub(t *testing.T) {
	hub := channel.NewLocalHub()
	rec := &rowRecorder{}
	sub, err := hub.Join(context.Background(), "ABC123", "player-1", rec)
	require.NoError(t, err)
	defer sub.Close()

	relay := NewRelay(newFakeSource(change(1)), fakeResolver{}, hub, testConfig(), nil)
	_, err = relay.processUnsent(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "host", *rec.changes[0].Patch.HostName)
}

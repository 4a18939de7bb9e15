package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// TimerDriver counts down the question timer and the bell timer. Only the
// host session runs one; everyone else displays the broadcast values.
// Ticks are broadcast without persisting; reaching zero is persisted.
type TimerDriver struct {
	d        *Dispatcher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTimerDriver(d *Dispatcher, interval time.Duration) *TimerDriver {
	if interval <= 0 {
		interval = TickInterval
	}
	return &TimerDriver{d: d, interval: interval}
}

// Start launches the ticking goroutine. Calling it twice is a no-op.
func (t *TimerDriver) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, t.done)
}

// Stop halts the goroutine and waits for it to exit.
func (t *TimerDriver) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *TimerDriver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := t.d.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.Tick(ctx)
		}
	}
}

// Tick advances both countdowns by one step. It reports whether anything
// changed.
func (t *TimerDriver) Tick(ctx context.Context) bool {
	before := t.d.store.State()
	if !before.IsTimerRunning && !before.Bell.IsTimerRunning {
		return false
	}
	_, _, timerChanged := t.d.store.Dispatch(engine.TickTimer{})
	_, _, bellChanged := t.d.store.Dispatch(engine.TickBell{})
	if !timerChanged && !bellChanged {
		return false
	}
	after := t.d.store.State()
	patch := engine.Diff(before, after)

	expired := (before.IsTimerRunning && !after.IsTimerRunning) ||
		(before.Bell.IsTimerRunning && !after.Bell.IsTimerRunning)
	if expired {
		if err := t.d.persist(ctx, after.GameID, patch); err != nil {
			log.Error().Err(err).Str("game_id", after.GameID).Msg("failed to persist expired timer")
		} else {
			log.Debug().Str("game_id", after.GameID).Msg("timer expired")
		}
	}

	t.d.broadcast(ctx, events.GameStateUpdate{GameState: patch})
	return true
}

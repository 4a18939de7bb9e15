package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

func newStore() *GameStore {
	return New(models.NewGameState("G1", "code", "Host", nil, time.Unix(0, 0).UTC()))
}

func TestDispatchNotifiesOnChange(t *testing.T) {
	s := newStore()
	var got []models.Phase
	unsubscribe := s.Subscribe(func(state models.GameState) {
		got = append(got, state.Phase)
	})

	before, after, changed := s.Dispatch(engine.ConfirmSettings{Settings: models.DefaultSegmentSettings()})
	require.True(t, changed)
	assert.Equal(t, models.PhaseConfig, before.Phase)
	assert.Equal(t, models.PhaseLobby, after.Phase)
	assert.Equal(t, uint64(1), s.Version())

	_, _, changed = s.Dispatch(engine.StartGame{})
	assert.False(t, changed)
	assert.Equal(t, uint64(1), s.Version())

	unsubscribe()
	s.Dispatch(engine.SetHostName{Name: "Someone"})

	assert.Equal(t, []models.Phase{models.PhaseLobby}, got)
}

func TestStateIsACopy(t *testing.T) {
	s := newStore()
	snap := s.State()
	snap.Players[models.PlayerA] = models.Player{ID: models.PlayerA, Score: 99}
	assert.Equal(t, 0, s.State().Players[models.PlayerA].Score)
}

func TestReplace(t *testing.T) {
	s := newStore()
	fresh := models.NewGameState("G1", "code", "Other", nil, time.Unix(0, 0).UTC())
	fresh.Phase = models.PhaseLobby

	notified := make(chan models.GameState, 1)
	s.Subscribe(func(state models.GameState) { notified <- state })

	s.Replace(fresh)
	assert.Equal(t, fresh, s.State())
	assert.Equal(t, "Other", (<-notified).HostName)
}

func TestConcurrentDispatchIsSerialized(t *testing.T) {
	s := newStore()
	s.Dispatch(engine.ConfirmSettings{Settings: models.DefaultSegmentSettings()})
	s.Dispatch(engine.JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "A"}})
	s.Dispatch(engine.SetVideoRoom{URL: "u", Created: true})
	s.Dispatch(engine.StartGame{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Dispatch(engine.UpdateScore{EventID: fmt.Sprintf("e%d", i), PlayerID: models.PlayerA, Points: 1})
		}(i)
	}
	wg.Wait()

	state := s.State()
	assert.Equal(t, 50, state.Players[models.PlayerA].Score)
	assert.Len(t, state.ScoreHistory, 50)
}

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

var testNow = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func newGame() models.GameState {
	return models.NewGameState("GAME1", "host-code", "Host", nil, testNow)
}

func lobbyGame(t *testing.T) models.GameState {
	t.Helper()
	s, ok := Apply(newGame(), ConfirmSettings{Settings: models.DefaultSegmentSettings()})
	require.True(t, ok)
	require.Equal(t, models.PhaseLobby, s.Phase)
	return s
}

func playingGame(t *testing.T) models.GameState {
	t.Helper()
	s := lobbyGame(t)
	s = Reduce(s, JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "Ali"}, At: testNow})
	s = Reduce(s, JoinPlayer{Player: models.Player{ID: models.PlayerB, Name: "Bea"}, At: testNow})
	s = Reduce(s, SetVideoRoom{URL: "https://video.example/GAME1", Created: true})
	s, ok := Apply(s, StartGame{})
	require.True(t, ok)
	return s
}

func TestConfirmSettings(t *testing.T) {
	t.Run("valid settings move to lobby", func(t *testing.T) {
		s := lobbyGame(t)
		assert.Equal(t, models.DefaultSegmentSettings(), s.SegmentSettings)
	})

	t.Run("out of range count is ignored", func(t *testing.T) {
		settings := models.DefaultSegmentSettings()
		settings[models.SegmentBELL] = 21
		s := newGame()
		next, ok := Apply(s, ConfirmSettings{Settings: settings})
		assert.False(t, ok)
		assert.Equal(t, s, next)
	})

	t.Run("missing segment is ignored", func(t *testing.T) {
		settings := models.DefaultSegmentSettings()
		delete(settings, models.SegmentREMO)
		_, ok := Apply(newGame(), ConfirmSettings{Settings: settings})
		assert.False(t, ok)
	})

	t.Run("second confirmation is ignored", func(t *testing.T) {
		s := lobbyGame(t)
		_, ok := Apply(s, ConfirmSettings{Settings: models.DefaultSegmentSettings()})
		assert.False(t, ok)
	})
}

func TestInputIsNotMutated(t *testing.T) {
	s := playingGame(t)
	snapshot := s.Clone()

	_ = Reduce(s, UpdateScore{EventID: "e1", PlayerID: models.PlayerA, Points: 5, At: testNow})
	_ = Reduce(s, UseSpecialButton{PlayerID: models.PlayerA, Button: models.LockButton})
	_ = Reduce(s, AddStrike{PlayerID: models.PlayerB})

	assert.Equal(t, snapshot, s)
}

// Scenario A: four advances in a four question segment.
func TestNextQuestionMarksSegmentComplete(t *testing.T) {
	s := lobbyGame(t)
	s = Reduce(s, JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "Ali"}, At: testNow})
	s = Reduce(s, SetVideoRoom{URL: "u", Created: true})
	s = Reduce(s, StartGame{})
	require.Equal(t, models.PhasePlaying, s.Phase)
	require.Equal(t, models.SegmentWSHA, s.CurrentSegment)
	require.Equal(t, 0, s.CurrentQuestionIndex)

	for i := 0; i < 4; i++ {
		s = Reduce(s, NextQuestion{})
	}

	assert.Equal(t, 3, s.CurrentQuestionIndex)
	assert.True(t, s.SegmentComplete)
	assert.Equal(t, models.SegmentWSHA, s.CurrentSegment)
	assert.Equal(t, models.PhasePlaying, s.Phase)

	next, ok := Apply(s, NextQuestion{})
	assert.False(t, ok, "exhausted segment ignores further advances")
	assert.Equal(t, s, next)

	s = Reduce(s, NextSegment{})
	assert.Equal(t, models.SegmentAUCT, s.CurrentSegment)
	assert.Equal(t, 0, s.CurrentQuestionIndex)
	assert.False(t, s.SegmentComplete)
}

func TestFinalSegmentCompletesGame(t *testing.T) {
	s := playingGame(t)
	for _, want := range []models.SegmentCode{models.SegmentAUCT, models.SegmentBELL, models.SegmentSING, models.SegmentREMO} {
		s = Reduce(s, NextSegment{})
		require.Equal(t, want, s.CurrentSegment)
	}

	for i := 0; i < s.SegmentSettings[models.SegmentREMO]; i++ {
		s = Reduce(s, NextQuestion{})
	}
	assert.Equal(t, models.PhaseCompleted, s.Phase)

	frozen := s.Clone()
	for _, a := range []Action{
		UpdateScore{EventID: "late", PlayerID: models.PlayerA, Points: 10},
		SetHostName{Name: "Other"},
		ApplyPatch{Patch: models.GameStatePatch{Phase: models.Ptr(models.PhaseLobby)}},
		Reconcile{Patch: models.GameStatePatch{HostName: models.Ptr("x")}},
	} {
		s = Reduce(s, a)
	}
	assert.Equal(t, frozen, s)
}

// Scenario B: score floor.
func TestUpdateScoreClampsAtZero(t *testing.T) {
	s := playingGame(t)
	s = Reduce(s, UpdateScore{EventID: "e1", PlayerID: models.PlayerA, Points: 5, At: testNow})
	s = Reduce(s, UpdateScore{EventID: "e2", PlayerID: models.PlayerA, Points: -10, At: testNow})

	assert.Equal(t, 0, s.Players[models.PlayerA].Score)
	require.Len(t, s.ScoreHistory, 2)
	assert.Equal(t, 5, s.ScoreHistory[0].Points)
	assert.Equal(t, -10, s.ScoreHistory[1].Points)
	assert.Equal(t, models.SegmentWSHA, s.ScoreHistory[1].Segment)
}

func TestUpdateScoreRequiresPlaying(t *testing.T) {
	s := lobbyGame(t)
	next, ok := Apply(s, UpdateScore{EventID: "e1", PlayerID: models.PlayerA, Points: 5})
	assert.False(t, ok)
	assert.Equal(t, s, next)
}

func TestStrikesCeiling(t *testing.T) {
	s := playingGame(t)
	for i := 0; i < 5; i++ {
		s = Reduce(s, AddStrike{PlayerID: models.PlayerB})
	}
	assert.Equal(t, models.MaxStrikes, s.Players[models.PlayerB].Strikes)

	s = Reduce(s, ResetStrikes{PlayerID: models.PlayerB})
	assert.Equal(t, 0, s.Players[models.PlayerB].Strikes)
}

func TestSpecialButtonsAreOneShot(t *testing.T) {
	s := playingGame(t)
	s, ok := Apply(s, UseSpecialButton{PlayerID: models.PlayerA, Button: models.PitButton})
	require.True(t, ok)
	assert.False(t, s.Players[models.PlayerA].SpecialButtons[models.PitButton])
	assert.True(t, s.Players[models.PlayerB].SpecialButtons[models.PitButton])

	_, ok = Apply(s, UseSpecialButton{PlayerID: models.PlayerA, Button: models.PitButton})
	assert.False(t, ok)

	_, ok = Apply(s, UseSpecialButton{PlayerID: models.PlayerA, Button: "NOPE"})
	assert.False(t, ok)
}

// Scenario D: start needs a connected player and a video room.
func TestStartGamePreconditions(t *testing.T) {
	t.Run("no video room", func(t *testing.T) {
		s := lobbyGame(t)
		s = Reduce(s, JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "Ali"}})
		next, ok := Apply(s, StartGame{})
		assert.False(t, ok)
		assert.Equal(t, models.PhaseLobby, next.Phase)
	})

	t.Run("no connected player", func(t *testing.T) {
		s := lobbyGame(t)
		s = Reduce(s, SetVideoRoom{URL: "u", Created: true})
		_, ok := Apply(s, StartGame{})
		assert.False(t, ok)
	})

	t.Run("one player and a video room", func(t *testing.T) {
		s := lobbyGame(t)
		s = Reduce(s, JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "Ali"}})
		s = Reduce(s, SetVideoRoom{URL: "u", Created: true})
		s, ok := Apply(s, StartGame{})
		require.True(t, ok)
		assert.Equal(t, models.PhasePlaying, s.Phase)
		assert.Equal(t, models.SegmentWSHA, s.CurrentSegment)
		assert.Equal(t, 0, s.CurrentQuestionIndex)
	})

	t.Run("not from config", func(t *testing.T) {
		s := newGame()
		s = Reduce(s, JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "Ali"}})
		s = Reduce(s, SetVideoRoom{URL: "u", Created: true})
		_, ok := Apply(s, StartGame{})
		assert.False(t, ok)
	})
}

func TestBellFirstPressWins(t *testing.T) {
	s := playingGame(t)
	s = Reduce(s, ActivateBell{})
	require.True(t, s.Bell.IsActive)
	round := s.Bell.Round

	s = Reduce(s, PressBell{PlayerID: models.PlayerB})
	s = Reduce(s, PressBell{PlayerID: models.PlayerA})

	assert.Equal(t, models.PlayerB, s.Bell.ClickedBy)
	assert.Equal(t, models.BellCountdownSeconds, s.Bell.TimerSeconds)
	assert.True(t, s.Bell.IsTimerRunning)
	assert.Equal(t, round, s.Bell.Round)

	s = Reduce(s, ResetBell{})
	assert.False(t, s.Bell.IsActive)
	assert.False(t, s.Bell.Claimed())
	assert.Greater(t, s.Bell.Round, round)
}

func TestBellPressRequiresActiveBell(t *testing.T) {
	s := playingGame(t)
	_, ok := Apply(s, PressBell{PlayerID: models.PlayerA})
	assert.False(t, ok)
}

func TestBellCountdown(t *testing.T) {
	s := playingGame(t)
	s = Reduce(s, ActivateBell{})
	s = Reduce(s, PressBell{PlayerID: models.PlayerA})
	for i := 0; i < models.BellCountdownSeconds+2; i++ {
		s = Reduce(s, TickBell{})
	}
	assert.Equal(t, 0, s.Bell.TimerSeconds)
	assert.False(t, s.Bell.IsTimerRunning)
	assert.Equal(t, models.PlayerA, s.Bell.ClickedBy)
}

func TestQuestionTimer(t *testing.T) {
	s := playingGame(t)
	_, ok := Apply(s, StartTimer{Seconds: 0})
	assert.False(t, ok)

	s = Reduce(s, StartTimer{Seconds: 2})
	s = Reduce(s, TickTimer{})
	assert.Equal(t, 1, s.Timer)
	assert.True(t, s.IsTimerRunning)
	s = Reduce(s, TickTimer{})
	assert.Equal(t, 0, s.Timer)
	assert.False(t, s.IsTimerRunning)

	_, ok = Apply(s, TickTimer{})
	assert.False(t, ok)
}

func TestJoinKeepsProgress(t *testing.T) {
	s := playingGame(t)
	s = Reduce(s, UpdateScore{EventID: "e1", PlayerID: models.PlayerA, Points: 7})
	s = Reduce(s, UseSpecialButton{PlayerID: models.PlayerA, Button: models.LockButton})
	s = Reduce(s, LeavePlayer{PlayerID: models.PlayerA})
	require.False(t, s.Players[models.PlayerA].IsConnected)

	stale := models.NewPlayer(models.PlayerA)
	stale.Name = "Ali"
	s = Reduce(s, JoinPlayer{Player: stale, At: testNow.Add(time.Minute)})

	p := s.Players[models.PlayerA]
	assert.True(t, p.IsConnected)
	assert.Equal(t, 7, p.Score)
	assert.False(t, p.SpecialButtons[models.LockButton])
	assert.Equal(t, testNow.Add(time.Minute), p.LastActive)
}

func TestJoinTakesFurthestProgress(t *testing.T) {
	s := playingGame(t)

	rejoin := models.NewPlayer(models.PlayerA)
	rejoin.Name = "Ali"
	rejoin.Score = 5
	rejoin.Strikes = 2
	rejoin.SpecialButtons[models.LockButton] = false
	s = Reduce(s, JoinPlayer{Player: rejoin, At: testNow.Add(time.Minute)})

	p := s.Players[models.PlayerA]
	assert.Equal(t, 5, p.Score)
	assert.Equal(t, 2, p.Strikes)
	assert.False(t, p.SpecialButtons[models.LockButton])
	assert.True(t, p.SpecialButtons[models.PitButton])

	older := models.NewPlayer(models.PlayerA)
	older.Strikes = 9
	s = Reduce(s, JoinPlayer{Player: older, At: testNow})
	p = s.Players[models.PlayerA]
	assert.Equal(t, 5, p.Score)
	assert.Equal(t, models.MaxStrikes, p.Strikes)
	assert.False(t, p.SpecialButtons[models.LockButton])
	assert.Equal(t, testNow.Add(time.Minute), p.LastActive)
}

func TestJoinOrderDoesNotMatter(t *testing.T) {
	base := lobbyGame(t)

	// each client joins its own slot and broadcasts the resulting record
	onA := Reduce(base, JoinPlayer{Player: models.Player{ID: models.PlayerA, Name: "Ali", Flag: "SA"}, At: testNow})
	onB := Reduce(base, JoinPlayer{Player: models.Player{ID: models.PlayerB, Name: "Bea", Club: "Hilal"}, At: testNow.Add(time.Second)})
	fromA := onA.Players[models.PlayerA].Clone()
	fromB := onB.Players[models.PlayerB].Clone()

	// receivers apply a player_join with the record's own activity time
	onA = Reduce(onA, JoinPlayer{Player: fromB, At: fromB.LastActive})
	onB = Reduce(onB, JoinPlayer{Player: fromA, At: fromA.LastActive})

	assert.Equal(t, onA.Players, onB.Players)
	assert.Equal(t, 2, onA.ConnectedPlayerCount())
}

func TestJoinRejectsUnknownSlot(t *testing.T) {
	s := lobbyGame(t)
	_, ok := Apply(s, JoinPlayer{Player: models.Player{ID: "playerC", Name: "Cy"}})
	assert.False(t, ok)
}

func TestNilAction(t *testing.T) {
	s := newGame()
	assert.Equal(t, s, Reduce(s, nil))
}

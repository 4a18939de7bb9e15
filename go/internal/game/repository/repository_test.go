package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/db"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

var (
	gameCols = []string{
		"id", "host_code", "host_name", "host_is_connected", "phase", "current_segment",
		"current_question_index", "segment_complete", "segment_settings", "video_room_url",
		"video_room_created", "timer", "is_timer_running", "bell_active", "bell_clicked_by",
		"bell_round", "bell_timer", "bell_timer_running", "created_at", "updated_at",
	}
	playerCols = []string{
		"id", "game_id", "name", "flag", "club", "role", "score", "strikes",
		"is_connected", "special_buttons", "joined_at", "last_active",
	}
	scoreCols = []string{"id", "game_id", "player_id", "points", "segment", "question_index", "created_at"}

	created = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewRepository(conn), mock
}

func playingGameRow(clickedBy interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(gameCols).AddRow(
		"G1", "HOST1", "Quiz Master", true, "PLAYING", "BELL",
		2, false, []byte(`{"WSHA":4,"AUCT":4,"BELL":10,"SING":10,"REMO":4}`), "https://video.example/G1",
		true, 0, false, true, clickedBy,
		3, 10, clickedBy != nil, created, created.Add(time.Minute),
	)
}

func TestCreateGame(t *testing.T) {
	repo, mock := newMockRepo(t)
	state := models.NewGameState("G1", "HOST1", "Quiz Master", nil, created)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO games").
		WithArgs("G1", "HOST1", "Quiz Master", "CONFIG", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(gameCols).AddRow(
			"G1", "HOST1", "Quiz Master", false, "CONFIG", nil,
			0, false, nil, nil,
			false, 0, false, false, nil,
			0, 0, false, created, created,
		))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateGame(context.Background(), state))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateGameDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	state := models.NewGameState("G1", "HOST1", "Quiz Master", nil, created)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO games").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.CreateGame(context.Background(), state)
	assert.ErrorIs(t, err, models.ErrGameExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadGame(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM games").WithArgs("G1").WillReturnRows(playingGameRow("playerA"))
	mock.ExpectQuery("FROM players").WithArgs("G1").WillReturnRows(
		sqlmock.NewRows(playerCols).AddRow(
			"playerA", "G1", "Ali", "SA", "Al Hilal", nil, 7, 1,
			true, []byte(`{"LOCK_BUTTON":false,"TRAVELER_BUTTON":true,"PIT_BUTTON":true}`), created, created,
		),
	)
	mock.ExpectQuery("FROM score_events").WithArgs("G1").WillReturnRows(
		sqlmock.NewRows(scoreCols).AddRow("e1", "G1", "playerA", 7, "WSHA", 0, created),
	)
	mock.ExpectCommit()

	state, err := repo.LoadGame(context.Background(), "G1")
	require.NoError(t, err)

	assert.Equal(t, models.PhasePlaying, state.Phase)
	assert.Equal(t, models.SegmentCode("BELL"), state.CurrentSegment)
	assert.Equal(t, 2, state.CurrentQuestionIndex)
	assert.Equal(t, 10, state.SegmentSettings["BELL"])
	assert.Equal(t, models.PlayerA, state.Bell.ClickedBy)
	assert.Equal(t, 3, state.Bell.Round)

	a := state.Players[models.PlayerA]
	assert.Equal(t, "Ali", a.Name)
	assert.Equal(t, 7, a.Score)
	assert.False(t, a.SpecialButtons.Available(models.LockButton))
	assert.True(t, a.SpecialButtons.Available(models.PitButton))

	b := state.Players[models.PlayerB]
	assert.Equal(t, models.PlayerB, b.ID)
	assert.False(t, b.IsConnected)

	require.Len(t, state.ScoreHistory, 1)
	assert.Equal(t, "e1", state.ScoreHistory[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadGameNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM games").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.LoadGame(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrGameNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaWritesEveryTable(t *testing.T) {
	repo, mock := newMockRepo(t)

	patch := models.GameStatePatch{
		Phase: models.Ptr(models.PhasePlaying),
		Players: map[models.PlayerID]models.PlayerPatch{
			models.PlayerA: {Score: models.Ptr(3), IsConnected: models.Ptr(true)},
		},
		ScoreHistory: []models.ScoreEvent{
			{ID: "e1", PlayerID: models.PlayerA, Points: 3, Timestamp: created, Segment: "WSHA"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE games SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO players AS p").
		WithArgs("playerA", "G1", nil, nil, nil, nil, nil, int64(0), true, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(playerCols).AddRow(
			"playerA", "G1", "Ali", nil, nil, nil, 0, 0, true, nil, created, created,
		))
	mock.ExpectExec("INSERT INTO score_events").
		WithArgs("e1", "G1", "playerA", int64(3), "WSHA", int64(0), created).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`score = GREATEST\(0, players.score \+ \$3::integer\)`).
		WithArgs("G1", "playerA", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveDelta(context.Background(), "G1", patch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaStaleWritersMerge(t *testing.T) {
	repo, mock := newMockRepo(t)

	// the host scores A
	scored := models.GameStatePatch{
		Players: map[models.PlayerID]models.PlayerPatch{models.PlayerA: {Score: models.Ptr(10)}},
		ScoreHistory: []models.ScoreEvent{
			{ID: "e1", PlayerID: models.PlayerA, Points: 10, Timestamp: created, Segment: "WSHA"},
		},
	}
	// A never saw the score and uses a button from its own copy
	used := models.GameStatePatch{
		Players: map[models.PlayerID]models.PlayerPatch{
			models.PlayerA: {SpecialButtons: models.SpecialButtons{models.LockButton: false}},
		},
	}
	// the host adds a strike with a copy where the button is still available
	struck := models.GameStatePatch{
		Players: map[models.PlayerID]models.PlayerPatch{models.PlayerA: {Strikes: models.Ptr(1), StrikesDelta: 1}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO score_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("players.score").
		WithArgs("G1", "playerA", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`special_buttons = and_special_buttons\(p.special_buttons, \$10::jsonb\)`).
		WithArgs("playerA", "G1", nil, nil, nil, nil, nil, int64(0), nil, []byte(`{"LOCK_BUTTON":false}`), nil, nil).
		WillReturnRows(sqlmock.NewRows(playerCols).AddRow(
			"playerA", "G1", "Ali", nil, nil, nil, 10, 0, true, []byte(`{"LOCK_BUTTON":false}`), created, created,
		))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`COALESCE\(\$7::integer, p.strikes\) \+ \$8::integer`).
		WithArgs("playerA", "G1", nil, nil, nil, nil, nil, int64(1), nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(playerCols).AddRow(
			"playerA", "G1", "Ali", nil, nil, nil, 10, 1, true, []byte(`{"LOCK_BUTTON":false}`), created, created,
		))
	mock.ExpectCommit()

	ctx := context.Background()
	require.NoError(t, repo.SaveDelta(ctx, "G1", scored))
	require.NoError(t, repo.SaveDelta(ctx, "G1", used))
	require.NoError(t, repo.SaveDelta(ctx, "G1", struck))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaReplayedScoreCountsOnce(t *testing.T) {
	repo, mock := newMockRepo(t)

	patch := models.GameStatePatch{ScoreHistory: []models.ScoreEvent{
		{ID: "e1", PlayerID: models.PlayerB, Points: 5, Timestamp: created, Segment: "AUCT"},
	}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO score_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveDelta(context.Background(), "G1", patch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaStrikeResetIsAbsolute(t *testing.T) {
	repo, mock := newMockRepo(t)

	patch := models.GameStatePatch{Players: map[models.PlayerID]models.PlayerPatch{
		models.PlayerB: {Strikes: models.Ptr(0)},
	}}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO players AS p").
		WithArgs("playerB", "G1", nil, nil, nil, nil, int64(0), int64(0), nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(playerCols).AddRow(
			"playerB", "G1", "Sara", nil, nil, nil, 4, 0, true, nil, created, created,
		))
	mock.ExpectCommit()

	require.NoError(t, repo.SaveDelta(context.Background(), "G1", patch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaBellIsRoundGuarded(t *testing.T) {
	repo, mock := newMockRepo(t)

	expired := models.BellState{IsActive: true, ClickedBy: models.PlayerA, Round: 3}
	mock.ExpectBegin()
	mock.ExpectExec(`GREATEST\(bell_round, \$16::integer\)`).
		WithArgs("G1", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
			true, true, "playerA", int64(3), int64(0), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveDelta(context.Background(), "G1", models.GameStatePatch{Bell: &expired})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaMissingGameRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE games SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SaveDelta(context.Background(), "G1", models.GameStatePatch{HostName: models.Ptr("x")})
	assert.ErrorIs(t, err, models.ErrGameNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDeltaEmptyPatchIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.SaveDelta(context.Background(), "G1", models.GameStatePatch{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBellWins(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE games SET").
		WithArgs("G1", "playerA", int64(3), int64(models.BellCountdownSeconds)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FROM games").WithArgs("G1").WillReturnRows(playingGameRow("playerA"))

	bell, err := repo.ClaimBell(context.Background(), "G1", models.PlayerA, 3)
	require.NoError(t, err)
	assert.Equal(t, models.PlayerA, bell.ClickedBy)
	assert.True(t, bell.IsTimerRunning)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBellLosesRace(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE games SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM games").WithArgs("G1").WillReturnRows(playingGameRow("playerB"))

	bell, err := repo.ClaimBell(context.Background(), "G1", models.PlayerA, 3)
	assert.ErrorIs(t, err, models.ErrBellAlreadyClaimed)
	assert.Equal(t, models.PlayerB, bell.ClickedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowChangeForPlayer(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("FROM players").WithArgs("G1", "playerB").WillReturnRows(
		sqlmock.NewRows(playerCols).AddRow(
			"playerB", "G1", "Sara", nil, nil, nil, 0, 2, true, nil, created, created,
		),
	)

	rc, err := repo.RowChange(context.Background(), db.GameChangeOutbox{
		ID: 42, GameID: "G1", TableName: "players", RowID: "playerB", Operation: "UPDATE", CreatedAt: created,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rc.ChangeID)
	assert.Equal(t, events.TablePlayers, rc.Table)
	require.Contains(t, rc.Patch.Players, models.PlayerB)
	require.NotNil(t, rc.Patch.Players[models.PlayerB].Strikes)
	assert.Equal(t, 2, *rc.Patch.Players[models.PlayerB].Strikes)
	assert.False(t, rc.Patch.HasGameFields())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowChangeForGame(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM games").WithArgs("G1").WillReturnRows(playingGameRow(nil))

	rc, err := repo.RowChange(context.Background(), db.GameChangeOutbox{
		ID: 7, GameID: "G1", TableName: "games", RowID: "G1", Operation: "UPDATE",
	})
	require.NoError(t, err)
	require.NotNil(t, rc.Patch.Bell)
	assert.False(t, rc.Patch.Bell.Claimed())
	assert.Equal(t, models.PhasePlaying, *rc.Patch.Phase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRowChangeUnknownTable(t *testing.T) {
	repo, _ := newMockRepo(t)
	_, err := repo.RowChange(context.Background(), db.GameChangeOutbox{TableName: "nope"})
	assert.Error(t, err)
}

func TestMarkPlayerConnected(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE players SET is_connected").
		WithArgs("G1", "playerA", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPlayerConnected(context.Background(), "G1", models.PlayerA, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetHostConnected(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE games SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetHostConnected(context.Background(), "G1", true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

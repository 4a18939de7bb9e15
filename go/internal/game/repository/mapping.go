package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/db"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/sqlutil"
)

// PatchFromGameRow expresses every column of a games row as a patch.
func PatchFromGameRow(row db.Game) (models.GameStatePatch, error) {
	var settings models.SegmentSettings
	if err := sqlutil.FromNullRawJSON(row.SegmentSettings, &settings); err != nil {
		return models.GameStatePatch{}, fmt.Errorf("segment settings: %w", err)
	}
	return models.GameStatePatch{
		HostName:             models.Ptr(sqlutil.FromSqlString(row.HostName, "")),
		HostIsConnected:      models.Ptr(row.HostIsConnected),
		Phase:                models.Ptr(models.Phase(row.Phase)),
		CurrentSegment:       models.Ptr(models.SegmentCode(sqlutil.FromSqlString(row.CurrentSegment, ""))),
		CurrentQuestionIndex: models.Ptr(int(row.CurrentQuestionIndex)),
		SegmentComplete:      models.Ptr(row.SegmentComplete),
		SegmentSettings:      settings,
		VideoRoomURL:         models.Ptr(sqlutil.FromSqlString(row.VideoRoomUrl, "")),
		VideoRoomCreated:     models.Ptr(row.VideoRoomCreated),
		Timer:                models.Ptr(int(row.Timer)),
		IsTimerRunning:       models.Ptr(row.IsTimerRunning),
		Bell:                 models.Ptr(bellFromRow(row)),
	}, nil
}

func bellFromRow(row db.Game) models.BellState {
	return models.BellState{
		IsActive:       row.BellActive,
		ClickedBy:      models.PlayerID(sqlutil.FromSqlString(row.BellClickedBy, "")),
		Round:          int(row.BellRound),
		TimerSeconds:   int(row.BellTimer),
		IsTimerRunning: row.BellTimerRunning,
	}
}

// StateFromRows assembles a full snapshot from persisted rows.
func StateFromRows(game db.Game, players []db.Player, scores []db.ScoreEvent) (models.GameState, error) {
	var settings models.SegmentSettings
	if err := sqlutil.FromNullRawJSON(game.SegmentSettings, &settings); err != nil {
		return models.GameState{}, fmt.Errorf("segment settings: %w", err)
	}
	state := models.NewGameState(game.ID, game.HostCode, sqlutil.FromSqlString(game.HostName, ""), settings, game.CreatedAt)
	state.HostIsConnected = game.HostIsConnected
	state.Phase = models.Phase(game.Phase)
	state.CurrentSegment = models.SegmentCode(sqlutil.FromSqlString(game.CurrentSegment, ""))
	state.CurrentQuestionIndex = int(game.CurrentQuestionIndex)
	state.SegmentComplete = game.SegmentComplete
	state.VideoRoomURL = sqlutil.FromSqlString(game.VideoRoomUrl, "")
	state.VideoRoomCreated = game.VideoRoomCreated
	state.Timer = int(game.Timer)
	state.IsTimerRunning = game.IsTimerRunning
	state.Bell = bellFromRow(game)
	state.UpdatedAt = game.UpdatedAt

	for _, row := range players {
		p, err := PlayerFromRow(row)
		if err != nil {
			return models.GameState{}, err
		}
		if !p.ID.Valid() {
			continue
		}
		state.Players[p.ID] = p
	}
	for _, row := range scores {
		state.ScoreHistory = append(state.ScoreHistory, ScoreEventFromRow(row))
	}
	return state, nil
}

func PlayerFromRow(row db.Player) (models.Player, error) {
	buttons := models.NewSpecialButtons()
	if err := sqlutil.FromNullRawJSON(row.SpecialButtons, &buttons); err != nil {
		return models.Player{}, fmt.Errorf("player %s special buttons: %w", row.ID, err)
	}
	return models.Player{
		ID:             models.PlayerID(row.ID),
		Name:           sqlutil.FromSqlString(row.Name, ""),
		Flag:           sqlutil.FromSqlString(row.Flag, ""),
		Club:           sqlutil.FromSqlString(row.Club, ""),
		Role:           sqlutil.FromSqlString(row.Role, ""),
		Score:          int(row.Score),
		Strikes:        int(row.Strikes),
		IsConnected:    row.IsConnected,
		SpecialButtons: buttons,
		JoinedAt:       row.JoinedAt,
		LastActive:     row.LastActive,
	}, nil
}

func ScoreEventFromRow(row db.ScoreEvent) models.ScoreEvent {
	return models.ScoreEvent{
		ID:            row.ID,
		PlayerID:      models.PlayerID(row.PlayerID),
		Points:        int(row.Points),
		Timestamp:     row.CreatedAt,
		Segment:       models.SegmentCode(sqlutil.FromSqlString(row.Segment, "")),
		QuestionIndex: int(row.QuestionIndex),
	}
}

func updateParamsFromPatch(gameID string, p models.GameStatePatch) (db.UpdateGameParams, error) {
	params := db.UpdateGameParams{
		ID:                   gameID,
		HostName:             sqlutil.ToSqlString(p.HostName),
		HostIsConnected:      sqlutil.ToSqlBool(p.HostIsConnected),
		CurrentQuestionIndex: sqlutil.ToSqlInt32(p.CurrentQuestionIndex),
		SegmentComplete:      sqlutil.ToSqlBool(p.SegmentComplete),
		VideoRoomUrl:         sqlutil.ToSqlString(p.VideoRoomURL),
		VideoRoomCreated:     sqlutil.ToSqlBool(p.VideoRoomCreated),
		Timer:                sqlutil.ToSqlInt32(p.Timer),
		IsTimerRunning:       sqlutil.ToSqlBool(p.IsTimerRunning),
	}
	if p.Phase != nil {
		params.Phase = sqlutil.ToSqlStringNonEmpty(string(*p.Phase))
	}
	if p.CurrentSegment != nil {
		params.CurrentSegment = sqlutil.ToSqlStringNonEmpty(string(*p.CurrentSegment))
	}
	if p.SegmentSettings != nil {
		raw, err := sqlutil.ToNullRawJSON(p.SegmentSettings)
		if err != nil {
			return db.UpdateGameParams{}, err
		}
		params.SegmentSettings = raw
	}
	if p.Bell != nil {
		b := *p.Bell
		params.SetBell = true
		params.BellActive = b.IsActive
		params.BellClickedBy = sqlutil.ToSqlStringNonEmpty(string(b.ClickedBy))
		params.BellRound = int32(b.Round)
		params.BellTimer = int32(b.TimerSeconds)
		params.BellTimerRunning = b.IsTimerRunning
	}
	return params, nil
}

// saveParamsFromPatch maps the changed fields of a slot. Score is left out:
// it only moves through score events.
func saveParamsFromPatch(gameID string, id models.PlayerID, p models.PlayerPatch) (db.SavePlayerParams, error) {
	params := db.SavePlayerParams{
		ID:           string(id),
		GameID:       gameID,
		Name:         nonEmpty(p.Name),
		Flag:         nonEmpty(p.Flag),
		Club:         nonEmpty(p.Club),
		Role:         nonEmpty(p.Role),
		StrikesDelta: int32(p.StrikesDelta),
		IsConnected:  sqlutil.ToSqlBool(p.IsConnected),
		JoinedAt:     nullTime(p.JoinedAt),
		LastActive:   nullTime(p.LastActive),
	}
	if p.StrikesDelta == 0 && p.Strikes != nil {
		params.Strikes = sqlutil.ToSqlInt32(p.Strikes)
	}
	if len(p.SpecialButtons) > 0 {
		buttons, err := sqlutil.ToNullRawJSON(p.SpecialButtons)
		if err != nil {
			return db.SavePlayerParams{}, err
		}
		params.SpecialButtons = buttons
	}
	return params, nil
}

// storesPlayerRow reports whether p changes a players column. A score on
// its own does not: it follows the score events.
func storesPlayerRow(p models.PlayerPatch) bool {
	p.Score = nil
	return !p.IsEmpty()
}

func nonEmpty(val *string) sql.NullString {
	if val == nil {
		return sql.NullString{}
	}
	return sqlutil.ToSqlStringNonEmpty(*val)
}

func nullTime(val *time.Time) sql.NullTime {
	if val == nil || val.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *val, Valid: true}
}

func insertParamsFromScore(gameID string, ev models.ScoreEvent) db.InsertScoreEventParams {
	return db.InsertScoreEventParams{
		ID:            ev.ID,
		GameID:        gameID,
		PlayerID:      string(ev.PlayerID),
		Points:        int32(ev.Points),
		Segment:       sqlutil.ToSqlStringNonEmpty(string(ev.Segment)),
		QuestionIndex: int32(ev.QuestionIndex),
		CreatedAt:     ev.Timestamp,
	}
}

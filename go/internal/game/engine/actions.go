package engine

import (
	"time"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// ActionKind names an action for logging and command routing.
type ActionKind string

const (
	KindConfirmSettings    ActionKind = "confirm_settings"
	KindSetHostName        ActionKind = "set_host_name"
	KindSetHostConnected   ActionKind = "set_host_connected"
	KindJoinPlayer         ActionKind = "join_player"
	KindLeavePlayer        ActionKind = "leave_player"
	KindSetPlayerConnected ActionKind = "set_player_connected"
	KindStartGame          ActionKind = "start_game"
	KindNextQuestion       ActionKind = "next_question"
	KindNextSegment        ActionKind = "next_segment"
	KindUpdateScore        ActionKind = "update_score"
	KindAddStrike          ActionKind = "add_strike"
	KindResetStrikes       ActionKind = "reset_strikes"
	KindUseSpecialButton   ActionKind = "use_special_button"
	KindActivateBell       ActionKind = "activate_bell"
	KindPressBell          ActionKind = "press_bell"
	KindResetBell          ActionKind = "reset_bell"
	KindTickBell           ActionKind = "tick_bell"
	KindStartTimer         ActionKind = "start_timer"
	KindStopTimer          ActionKind = "stop_timer"
	KindTickTimer          ActionKind = "tick_timer"
	KindSetVideoRoom       ActionKind = "set_video_room"
	KindApplyPatch         ActionKind = "apply_patch"
	KindReconcile          ActionKind = "reconcile"
)

// Action is a transition request. The set is closed to this package.
type Action interface {
	Kind() ActionKind
	action()
}

type ConfirmSettings struct {
	Settings models.SegmentSettings
}

type SetHostName struct {
	Name string
}

type SetHostConnected struct {
	Connected bool
}

// JoinPlayer writes the identity fields of a slot and marks it connected.
// Progress fields (score, strikes, buttons) are never taken from a join.
type JoinPlayer struct {
	Player models.Player
	At     time.Time
}

type LeavePlayer struct {
	PlayerID models.PlayerID
}

type SetPlayerConnected struct {
	PlayerID  models.PlayerID
	Connected bool
}

type StartGame struct{}

type NextQuestion struct{}

type NextSegment struct{}

type UpdateScore struct {
	EventID  string
	PlayerID models.PlayerID
	Points   int
	At       time.Time
}

type AddStrike struct {
	PlayerID models.PlayerID
}

type ResetStrikes struct {
	PlayerID models.PlayerID
}

type UseSpecialButton struct {
	PlayerID models.PlayerID
	Button   models.SpecialButton
}

type ActivateBell struct{}

type PressBell struct {
	PlayerID models.PlayerID
}

type ResetBell struct{}

type TickBell struct{}

type StartTimer struct {
	Seconds int
}

type StopTimer struct{}

type TickTimer struct{}

type SetVideoRoom struct {
	URL     string
	Created bool
}

// ApplyPatch merges a best-effort broadcast delta.
type ApplyPatch struct {
	Patch models.GameStatePatch
}

// Reconcile merges an authoritative row snapshot from the store.
type Reconcile struct {
	Patch models.GameStatePatch
}

func (ConfirmSettings) Kind() ActionKind    { return KindConfirmSettings }
func (SetHostName) Kind() ActionKind        { return KindSetHostName }
func (SetHostConnected) Kind() ActionKind   { return KindSetHostConnected }
func (JoinPlayer) Kind() ActionKind         { return KindJoinPlayer }
func (LeavePlayer) Kind() ActionKind        { return KindLeavePlayer }
func (SetPlayerConnected) Kind() ActionKind { return KindSetPlayerConnected }
func (StartGame) Kind() ActionKind          { return KindStartGame }
func (NextQuestion) Kind() ActionKind       { return KindNextQuestion }
func (NextSegment) Kind() ActionKind        { return KindNextSegment }
func (UpdateScore) Kind() ActionKind        { return KindUpdateScore }
func (AddStrike) Kind() ActionKind          { return KindAddStrike }
func (ResetStrikes) Kind() ActionKind       { return KindResetStrikes }
func (UseSpecialButton) Kind() ActionKind   { return KindUseSpecialButton }
func (ActivateBell) Kind() ActionKind       { return KindActivateBell }
func (PressBell) Kind() ActionKind          { return KindPressBell }
func (ResetBell) Kind() ActionKind          { return KindResetBell }
func (TickBell) Kind() ActionKind           { return KindTickBell }
func (StartTimer) Kind() ActionKind         { return KindStartTimer }
func (StopTimer) Kind() ActionKind          { return KindStopTimer }
func (TickTimer) Kind() ActionKind          { return KindTickTimer }
func (SetVideoRoom) Kind() ActionKind       { return KindSetVideoRoom }
func (ApplyPatch) Kind() ActionKind         { return KindApplyPatch }
func (Reconcile) Kind() ActionKind          { return KindReconcile }

func (ConfirmSettings) action()    {}
func (SetHostName) action()        {}
func (SetHostConnected) action()   {}
func (JoinPlayer) action()         {}
func (LeavePlayer) action()        {}
func (SetPlayerConnected) action() {}
func (StartGame) action()          {}
func (NextQuestion) action()       {}
func (NextSegment) action()        {}
func (UpdateScore) action()        {}
func (AddStrike) action()          {}
func (ResetStrikes) action()       {}
func (UseSpecialButton) action()   {}
func (ActivateBell) action()       {}
func (PressBell) action()          {}
func (ResetBell) action()          {}
func (TickBell) action()           {}
func (StartTimer) action()         {}
func (StopTimer) action()          {}
func (TickTimer) action()          {}
func (SetVideoRoom) action()       {}
func (ApplyPatch) action()         {}
func (Reconcile) action()          {}

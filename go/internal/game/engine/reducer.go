// Package engine holds the pure transition function for a game. Every
// action is either applied to a deep copy of the state or ignored; the
// input snapshot is never touched and nothing here fails.
package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

var allowedPhaseTransitions = map[models.Phase][]models.Phase{
	models.PhaseConfig:    {models.PhaseLobby},
	models.PhaseLobby:     {models.PhasePlaying},
	models.PhasePlaying:   {models.PhaseCompleted},
	models.PhaseCompleted: {},
}

func canTransition(from, to models.Phase) bool {
	for _, next := range allowedPhaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reduce returns the state after action. Illegal or unknown actions return
// state unchanged.
func Reduce(state models.GameState, action Action) models.GameState {
	next, _ := Apply(state, action)
	return next
}

// Apply is Reduce that also reports whether the state changed.
func Apply(state models.GameState, action Action) (models.GameState, bool) {
	if action == nil || state.Phase == models.PhaseCompleted {
		return state, false
	}

	next := state.Clone()
	var ok bool

	switch a := action.(type) {
	case ConfirmSettings:
		ok = confirmSettings(&next, a)
	case SetHostName:
		ok = setHostName(&next, a)
	case SetHostConnected:
		next.HostIsConnected = a.Connected
		ok = true
	case JoinPlayer:
		ok = joinPlayer(&next, a)
	case LeavePlayer:
		ok = setPlayerConnected(&next, a.PlayerID, false)
	case SetPlayerConnected:
		ok = setPlayerConnected(&next, a.PlayerID, a.Connected)
	case StartGame:
		ok = startGame(&next)
	case NextQuestion:
		ok = nextQuestion(&next)
	case NextSegment:
		ok = nextSegment(&next)
	case UpdateScore:
		ok = updateScore(&next, a)
	case AddStrike:
		ok = addStrike(&next, a.PlayerID)
	case ResetStrikes:
		ok = resetStrikes(&next, a.PlayerID)
	case UseSpecialButton:
		ok = useSpecialButton(&next, a)
	case ActivateBell:
		ok = activateBell(&next)
	case PressBell:
		ok = pressBell(&next, a.PlayerID)
	case ResetBell:
		ok = resetBell(&next)
	case TickBell:
		ok = tickBell(&next)
	case StartTimer:
		ok = startTimer(&next, a.Seconds)
	case StopTimer:
		ok = stopTimer(&next)
	case TickTimer:
		ok = tickTimer(&next)
	case SetVideoRoom:
		next.VideoRoomURL = a.URL
		next.VideoRoomCreated = a.Created
		ok = true
	case ApplyPatch:
		ok = mergePatch(&next, a.Patch, false)
	case Reconcile:
		ok = mergePatch(&next, a.Patch, true)
	default:
		return state, false
	}

	if !ok || reflect.DeepEqual(state, next) {
		return state, false
	}
	return next, true
}

func confirmSettings(s *models.GameState, a ConfirmSettings) bool {
	if s.Phase != models.PhaseConfig || a.Settings.Validate() != nil {
		return false
	}
	s.SegmentSettings = a.Settings.Clone()
	s.Phase = models.PhaseLobby
	return true
}

func setHostName(s *models.GameState, a SetHostName) bool {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return false
	}
	s.HostName = name
	return true
}

func joinPlayer(s *models.GameState, a JoinPlayer) bool {
	id := a.Player.ID
	if !id.Valid() {
		return false
	}
	cur, ok := s.Players[id]
	if !ok {
		cur = models.NewPlayer(id)
	}
	if name := strings.TrimSpace(a.Player.Name); name != "" {
		cur.Name = name
	}
	if a.Player.Flag != "" {
		cur.Flag = a.Player.Flag
	}
	if a.Player.Club != "" {
		cur.Club = a.Player.Club
	}
	if a.Player.Role != "" {
		cur.Role = a.Player.Role
	}
	// a join record may be older than what this replica holds, or newer:
	// keep the furthest progress of both
	cur.Score = max(cur.Score, a.Player.Score)
	cur.Strikes = clampStrikes(max(cur.Strikes, a.Player.Strikes))
	cur.SpecialButtons = andButtons(cur.SpecialButtons, a.Player.SpecialButtons)
	if cur.JoinedAt.IsZero() {
		cur.JoinedAt = a.At
	}
	if a.At.After(cur.LastActive) {
		cur.LastActive = a.At
	}
	cur.IsConnected = true
	if s.Players == nil {
		s.Players = make(map[models.PlayerID]models.Player, len(models.PlayerSlots))
	}
	s.Players[id] = cur
	return true
}

func setPlayerConnected(s *models.GameState, id models.PlayerID, connected bool) bool {
	p, ok := s.Players[id]
	if !ok || !id.Valid() {
		return false
	}
	p.IsConnected = connected
	s.Players[id] = p
	return true
}

func startGame(s *models.GameState) bool {
	if !canTransition(s.Phase, models.PhasePlaying) {
		return false
	}
	if s.ConnectedPlayerCount() < 1 || !s.VideoRoomCreated {
		return false
	}
	if s.SegmentSettings[models.SegmentWSHA] < models.MinQuestionsPerSegment {
		return false
	}
	s.Phase = models.PhasePlaying
	s.CurrentSegment = models.SegmentWSHA
	s.CurrentQuestionIndex = 0
	s.SegmentComplete = false
	return true
}

func nextQuestion(s *models.GameState) bool {
	if s.Phase != models.PhasePlaying || s.SegmentComplete {
		return false
	}
	count := s.QuestionCount()
	if count == 0 {
		return false
	}
	if s.CurrentQuestionIndex+1 < count {
		s.CurrentQuestionIndex++
		return true
	}
	if _, more := s.CurrentSegment.Next(); !more {
		s.Phase = models.PhaseCompleted
		s.SegmentComplete = true
		return true
	}
	s.SegmentComplete = true
	return true
}

func nextSegment(s *models.GameState) bool {
	if s.Phase != models.PhasePlaying {
		return false
	}
	next, ok := s.CurrentSegment.Next()
	if !ok {
		s.Phase = models.PhaseCompleted
		s.SegmentComplete = true
		return true
	}
	s.CurrentSegment = next
	s.CurrentQuestionIndex = 0
	s.SegmentComplete = false
	if s.Bell.IsActive || s.Bell.Claimed() {
		s.Bell = models.BellState{Round: s.Bell.Round + 1}
	}
	return true
}

func updateScore(s *models.GameState, a UpdateScore) bool {
	if s.Phase != models.PhasePlaying {
		return false
	}
	p, ok := s.Players[a.PlayerID]
	if !ok || !a.PlayerID.Valid() {
		return false
	}
	p.Score = max(0, p.Score+a.Points)
	s.Players[a.PlayerID] = p

	id := a.EventID
	if id == "" {
		id = fmt.Sprintf("%s-%s-%d", s.GameID, a.PlayerID, len(s.ScoreHistory)+1)
	}
	s.ScoreHistory = append(s.ScoreHistory, models.ScoreEvent{
		ID:            id,
		PlayerID:      a.PlayerID,
		Points:        a.Points,
		Timestamp:     a.At,
		Segment:       s.CurrentSegment,
		QuestionIndex: s.CurrentQuestionIndex,
	})
	return true
}

func addStrike(s *models.GameState, id models.PlayerID) bool {
	if s.Phase != models.PhasePlaying {
		return false
	}
	p, ok := s.Players[id]
	if !ok || p.Strikes >= models.MaxStrikes {
		return false
	}
	p.Strikes = min(models.MaxStrikes, p.Strikes+1)
	s.Players[id] = p
	return true
}

func resetStrikes(s *models.GameState, id models.PlayerID) bool {
	if s.Phase != models.PhasePlaying {
		return false
	}
	p, ok := s.Players[id]
	if !ok || p.Strikes == 0 {
		return false
	}
	p.Strikes = 0
	s.Players[id] = p
	return true
}

func useSpecialButton(s *models.GameState, a UseSpecialButton) bool {
	if s.Phase != models.PhasePlaying || !a.Button.Valid() {
		return false
	}
	p, ok := s.Players[a.PlayerID]
	if !ok || !p.SpecialButtons.Available(a.Button) {
		return false
	}
	if p.SpecialButtons == nil {
		p.SpecialButtons = models.NewSpecialButtons()
	}
	p.SpecialButtons[a.Button] = false
	s.Players[a.PlayerID] = p
	return true
}

func activateBell(s *models.GameState) bool {
	if s.Phase != models.PhasePlaying || s.Bell.IsActive {
		return false
	}
	s.Bell = models.BellState{IsActive: true, Round: s.Bell.Round + 1}
	return true
}

// pressBell claims the bell and starts its countdown in one step.
func pressBell(s *models.GameState, id models.PlayerID) bool {
	if s.Phase != models.PhasePlaying || !s.Bell.IsActive || s.Bell.Claimed() {
		return false
	}
	if _, ok := s.Players[id]; !ok || !id.Valid() {
		return false
	}
	s.Bell.ClickedBy = id
	s.Bell.TimerSeconds = models.BellCountdownSeconds
	s.Bell.IsTimerRunning = true
	return true
}

func resetBell(s *models.GameState) bool {
	if !s.Bell.IsActive && !s.Bell.Claimed() {
		return false
	}
	s.Bell = models.BellState{Round: s.Bell.Round + 1}
	return true
}

func tickBell(s *models.GameState) bool {
	if !s.Bell.IsTimerRunning {
		return false
	}
	s.Bell.TimerSeconds--
	if s.Bell.TimerSeconds <= 0 {
		s.Bell.TimerSeconds = 0
		s.Bell.IsTimerRunning = false
	}
	return true
}

func startTimer(s *models.GameState, seconds int) bool {
	if s.Phase != models.PhasePlaying || seconds <= 0 {
		return false
	}
	s.Timer = seconds
	s.IsTimerRunning = true
	return true
}

func stopTimer(s *models.GameState) bool {
	if !s.IsTimerRunning {
		return false
	}
	s.IsTimerRunning = false
	return true
}

func tickTimer(s *models.GameState) bool {
	if !s.IsTimerRunning {
		return false
	}
	s.Timer--
	if s.Timer <= 0 {
		s.Timer = 0
		s.IsTimerRunning = false
	}
	return true
}

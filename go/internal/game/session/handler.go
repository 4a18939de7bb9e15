package session

import (
	"github.com/rs/zerolog/log"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/engine"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/events"
)

// HandleMessage feeds a peer's broadcast through the reducer.
func (s *Session) HandleMessage(env events.Envelope, msg events.Message) {
	if env.GameID != s.GameID() {
		return
	}
	var action engine.Action
	switch m := msg.(type) {
	case events.GameStateUpdate:
		action = engine.ApplyPatch{Patch: m.GameState}
	case events.PlayerJoin:
		p := m.PlayerData
		p.ID = m.PlayerID
		action = engine.JoinPlayer{Player: p, At: p.LastActive}
	case events.PlayerLeave:
		action = engine.LeavePlayer{PlayerID: m.PlayerID}
	case events.HostUpdate:
		action = engine.SetHostName{Name: m.HostName}
	case events.VideoRoomUpdate:
		action = engine.SetVideoRoom{URL: m.RoomURL, Created: m.RoomCreated}
	default:
		log.Warn().Str("event", string(env.Event)).Msg("unhandled broadcast")
		return
	}
	s.store.Dispatch(action)
}

// HandleRowChange folds a committed row in with authoritative precedence.
func (s *Session) HandleRowChange(rc events.RowChange) {
	if rc.GameID != s.GameID() {
		return
	}
	s.store.Dispatch(engine.Reconcile{Patch: rc.Patch})
}

// HandlePresence updates the live participant set.
func (s *Session) HandlePresence(ev events.PresenceEvent) {
	if ev.GameID != "" && ev.GameID != s.GameID() {
		return
	}
	if s.tracker.Observe(ev) {
		s.notifyPresence()
	}
}

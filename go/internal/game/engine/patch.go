package engine

import (
	"reflect"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

// mergePatch folds a partial state into s. Every rule is monotone so
// replicas converge regardless of delivery order:
//   - phase only moves forward
//   - (segment, question) only moves forward while playing
//   - special buttons are ANDed, strikes move by delta and are clamped
//   - a broadcast moves scores only through score events it adds; an
//     authoritative row image sets them
//   - bell rounds only move forward; within a round the first winner stays
//     unless the patch is authoritative
//   - score history is a set keyed by event id
func mergePatch(s *models.GameState, p models.GameStatePatch, authoritative bool) bool {
	wasConfig := s.Phase == models.PhaseConfig

	if p.Phase != nil && p.Phase.Valid() && p.Phase.Rank() > s.Phase.Rank() {
		s.Phase = *p.Phase
	}

	if p.SegmentSettings != nil && wasConfig && p.SegmentSettings.Validate() == nil {
		s.SegmentSettings = p.SegmentSettings.Clone()
	}

	mergeProgress(s, p)

	if p.HostName != nil && *p.HostName != "" {
		s.HostName = *p.HostName
	}
	if p.HostIsConnected != nil {
		s.HostIsConnected = *p.HostIsConnected
	}
	if p.VideoRoomURL != nil {
		s.VideoRoomURL = *p.VideoRoomURL
	}
	if p.VideoRoomCreated != nil {
		s.VideoRoomCreated = *p.VideoRoomCreated
	}
	if p.Timer != nil {
		s.Timer = max(0, *p.Timer)
	}
	if p.IsTimerRunning != nil {
		s.IsTimerRunning = *p.IsTimerRunning
	}

	if p.Bell != nil {
		s.Bell = mergeBell(s.Bell, *p.Bell, authoritative)
	}

	for id, in := range p.Players {
		if !id.Valid() {
			continue
		}
		cur, ok := s.Players[id]
		if !ok {
			cur = models.NewPlayer(id)
		}
		if s.Players == nil {
			s.Players = make(map[models.PlayerID]models.Player, len(models.PlayerSlots))
		}
		s.Players[id] = mergePlayer(cur, in, authoritative)
	}

	if len(p.ScoreHistory) > 0 {
		var added []models.ScoreEvent
		s.ScoreHistory, added = mergeHistory(s.ScoreHistory, p.ScoreHistory)
		if !authoritative {
			for _, ev := range added {
				if pl, ok := s.Players[ev.PlayerID]; ok {
					pl.Score = max(0, pl.Score+ev.Points)
					s.Players[ev.PlayerID] = pl
				}
			}
		}
	}

	return true
}

func mergeProgress(s *models.GameState, p models.GameStatePatch) {
	if p.CurrentSegment == nil && p.CurrentQuestionIndex == nil && p.SegmentComplete == nil {
		return
	}

	segment := s.CurrentSegment
	if p.CurrentSegment != nil {
		segment = *p.CurrentSegment
	}
	index := s.CurrentQuestionIndex
	if p.CurrentQuestionIndex != nil {
		index = *p.CurrentQuestionIndex
	}
	if !segment.Valid() || index < 0 {
		return
	}
	if s.Phase == models.PhasePlaying && index >= s.SegmentSettings[segment] {
		return
	}

	curRank, newRank := s.CurrentSegment.Rank(), segment.Rank()
	switch {
	case newRank > curRank:
		s.CurrentSegment = segment
		s.CurrentQuestionIndex = index
		s.SegmentComplete = p.SegmentComplete != nil && *p.SegmentComplete
	case newRank == curRank:
		if index > s.CurrentQuestionIndex {
			s.CurrentQuestionIndex = index
		}
		if p.SegmentComplete != nil && *p.SegmentComplete {
			s.SegmentComplete = true
		}
	}
}

func mergeBell(cur, in models.BellState, authoritative bool) models.BellState {
	switch {
	case in.Round > cur.Round:
		return in
	case in.Round < cur.Round:
		return cur
	}

	switch {
	case !cur.Claimed():
		if in.Claimed() || authoritative {
			return in
		}
		// same round, both unclaimed: keep the active flag once seen
		in.IsActive = in.IsActive || cur.IsActive
		return in
	case in.ClickedBy == cur.ClickedBy:
		if in.TimerSeconds <= cur.TimerSeconds {
			cur.TimerSeconds = in.TimerSeconds
			cur.IsTimerRunning = in.IsTimerRunning
		}
		return cur
	case in.Claimed() && authoritative:
		return in
	default:
		return cur
	}
}

func mergePlayer(cur models.Player, in models.PlayerPatch, authoritative bool) models.Player {
	out := cur.Clone()
	if in.Name != nil && *in.Name != "" {
		out.Name = *in.Name
	}
	if in.Flag != nil && *in.Flag != "" {
		out.Flag = *in.Flag
	}
	if in.Club != nil && *in.Club != "" {
		out.Club = *in.Club
	}
	if in.Role != nil && *in.Role != "" {
		out.Role = *in.Role
	}
	if in.JoinedAt != nil && out.JoinedAt.IsZero() {
		out.JoinedAt = *in.JoinedAt
	}
	if in.LastActive != nil && in.LastActive.After(out.LastActive) {
		out.LastActive = *in.LastActive
	}
	if in.IsConnected != nil {
		out.IsConnected = *in.IsConnected
	}

	switch {
	case in.StrikesDelta != 0:
		out.Strikes = clampStrikes(out.Strikes + in.StrikesDelta)
	case in.Strikes != nil:
		out.Strikes = clampStrikes(*in.Strikes)
	}
	if authoritative && in.Score != nil {
		out.Score = max(0, *in.Score)
	}

	out.SpecialButtons = andButtons(out.SpecialButtons, in.SpecialButtons)
	return out
}

func clampStrikes(n int) int {
	return min(models.MaxStrikes, max(0, n))
}

// andButtons returns cur with every button in in ANDed into it. A used
// button never becomes available again.
func andButtons(cur, in models.SpecialButtons) models.SpecialButtons {
	out := cur.Clone()
	if out == nil {
		out = models.NewSpecialButtons()
	}
	for button, available := range in {
		if !button.Valid() {
			continue
		}
		out[button] = out.Available(button) && available
	}
	return out
}

// mergeHistory adds the events of in that cur lacks and returns them too.
func mergeHistory(cur, in []models.ScoreEvent) ([]models.ScoreEvent, []models.ScoreEvent) {
	seen := make(map[string]struct{}, len(cur))
	for _, ev := range cur {
		seen[ev.ID] = struct{}{}
	}
	out := cur
	var added []models.ScoreEvent
	for _, ev := range in {
		if ev.ID == "" {
			continue
		}
		if _, dup := seen[ev.ID]; dup {
			continue
		}
		seen[ev.ID] = struct{}{}
		out = append(out, ev)
		added = append(added, ev)
	}
	return out, added
}

// Diff returns the fields of after that differ from before. Segment,
// question index and completion travel together.
func Diff(before, after models.GameState) models.GameStatePatch {
	var p models.GameStatePatch

	if before.HostName != after.HostName {
		p.HostName = models.Ptr(after.HostName)
	}
	if before.HostIsConnected != after.HostIsConnected {
		p.HostIsConnected = models.Ptr(after.HostIsConnected)
	}
	if before.Phase != after.Phase {
		p.Phase = models.Ptr(after.Phase)
	}
	if before.CurrentSegment != after.CurrentSegment ||
		before.CurrentQuestionIndex != after.CurrentQuestionIndex ||
		before.SegmentComplete != after.SegmentComplete {
		p.CurrentSegment = models.Ptr(after.CurrentSegment)
		p.CurrentQuestionIndex = models.Ptr(after.CurrentQuestionIndex)
		p.SegmentComplete = models.Ptr(after.SegmentComplete)
	}
	if !reflect.DeepEqual(before.SegmentSettings, after.SegmentSettings) {
		p.SegmentSettings = after.SegmentSettings.Clone()
	}
	if before.VideoRoomURL != after.VideoRoomURL || before.VideoRoomCreated != after.VideoRoomCreated {
		p.VideoRoomURL = models.Ptr(after.VideoRoomURL)
		p.VideoRoomCreated = models.Ptr(after.VideoRoomCreated)
	}
	if before.Timer != after.Timer || before.IsTimerRunning != after.IsTimerRunning {
		p.Timer = models.Ptr(after.Timer)
		p.IsTimerRunning = models.Ptr(after.IsTimerRunning)
	}
	if before.Bell != after.Bell {
		p.Bell = models.Ptr(after.Bell)
	}

	for _, id := range models.PlayerSlots {
		a, ok := after.Players[id]
		if !ok {
			continue
		}
		b, had := before.Players[id]
		if !had {
			b = models.NewPlayer(id)
		}
		if pp := diffPlayer(b, a); !pp.IsEmpty() {
			if p.Players == nil {
				p.Players = make(map[models.PlayerID]models.PlayerPatch)
			}
			p.Players[id] = pp
		}
	}

	if len(after.ScoreHistory) > len(before.ScoreHistory) {
		known := make(map[string]struct{}, len(before.ScoreHistory))
		for _, ev := range before.ScoreHistory {
			known[ev.ID] = struct{}{}
		}
		for _, ev := range after.ScoreHistory {
			if _, ok := known[ev.ID]; !ok {
				p.ScoreHistory = append(p.ScoreHistory, ev)
			}
		}
	}

	return p
}

// diffPlayer returns only the fields of a slot that changed. Strike
// increments travel as a delta so concurrent writers add up; anything else
// that moves strikes (a reset) travels as an absolute value.
func diffPlayer(before, after models.Player) models.PlayerPatch {
	var p models.PlayerPatch
	if before.Name != after.Name {
		p.Name = models.Ptr(after.Name)
	}
	if before.Flag != after.Flag {
		p.Flag = models.Ptr(after.Flag)
	}
	if before.Club != after.Club {
		p.Club = models.Ptr(after.Club)
	}
	if before.Role != after.Role {
		p.Role = models.Ptr(after.Role)
	}
	if before.Score != after.Score {
		p.Score = models.Ptr(after.Score)
	}
	if before.Strikes != after.Strikes {
		p.Strikes = models.Ptr(after.Strikes)
		if after.Strikes > before.Strikes {
			p.StrikesDelta = after.Strikes - before.Strikes
		}
	}
	if before.IsConnected != after.IsConnected {
		p.IsConnected = models.Ptr(after.IsConnected)
	}
	for _, button := range models.SpecialButtonKinds {
		if was, now := before.SpecialButtons.Available(button), after.SpecialButtons.Available(button); was != now {
			if p.SpecialButtons == nil {
				p.SpecialButtons = make(models.SpecialButtons)
			}
			p.SpecialButtons[button] = now
		}
	}
	if !before.JoinedAt.Equal(after.JoinedAt) {
		p.JoinedAt = models.Ptr(after.JoinedAt)
	}
	if !before.LastActive.Equal(after.LastActive) {
		p.LastActive = models.Ptr(after.LastActive)
	}
	return p
}

// PatchFromState expresses a whole state as a patch.
func PatchFromState(s models.GameState) models.GameStatePatch {
	p := models.GameStatePatch{
		HostName:             models.Ptr(s.HostName),
		HostIsConnected:      models.Ptr(s.HostIsConnected),
		Phase:                models.Ptr(s.Phase),
		CurrentSegment:       models.Ptr(s.CurrentSegment),
		CurrentQuestionIndex: models.Ptr(s.CurrentQuestionIndex),
		SegmentComplete:      models.Ptr(s.SegmentComplete),
		SegmentSettings:      s.SegmentSettings.Clone(),
		VideoRoomURL:         models.Ptr(s.VideoRoomURL),
		VideoRoomCreated:     models.Ptr(s.VideoRoomCreated),
		Timer:                models.Ptr(s.Timer),
		IsTimerRunning:       models.Ptr(s.IsTimerRunning),
		Bell:                 models.Ptr(s.Bell),
	}
	if len(s.Players) > 0 {
		p.Players = make(map[models.PlayerID]models.PlayerPatch, len(s.Players))
		for id, pl := range s.Players {
			p.Players[id] = models.PlayerPatchFrom(pl)
		}
	}
	if len(s.ScoreHistory) > 0 {
		p.ScoreHistory = append([]models.ScoreEvent(nil), s.ScoreHistory...)
	}
	return p
}

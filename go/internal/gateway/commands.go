package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/dispatch"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/game/session"
	"github.com/Kasco23/thirty-challenge-code-sub000/go/internal/models"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrForbiddenCommand = errors.New("command not allowed for this role")
	ErrMalformedCommand = errors.New("malformed command")
)

// Command is a browser request. Only the fields the action needs are read.
type Command struct {
	ID       string                 `json:"id,omitempty"`
	Action   string                 `json:"action"`
	PlayerID models.PlayerID        `json:"playerId,omitempty"`
	Points   int                    `json:"points,omitempty"`
	Seconds  int                    `json:"seconds,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Button   models.SpecialButton   `json:"button,omitempty"`
	Settings models.SegmentSettings `json:"settings,omitempty"`
}

// DecodeCommand parses a client frame.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if cmd.Action == "" {
		return Command{}, fmt.Errorf("%w: missing action", ErrMalformedCommand)
	}
	return cmd, nil
}

type hostCommand func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result

type playerCommand func(ctx context.Context, p *dispatch.PlayerDispatcher, cmd Command) dispatch.Result

var hostCommands = map[string]hostCommand{
	"confirm_settings": func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result {
		return h.ConfirmSettings(ctx, cmd.Settings)
	},
	"start_game": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.StartGame(ctx)
	},
	"next_question": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.NextQuestion(ctx)
	},
	"next_segment": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.NextSegment(ctx)
	},
	"update_score": func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result {
		return h.UpdateScore(ctx, cmd.PlayerID, cmd.Points)
	},
	"add_strike": func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result {
		return h.AddStrike(ctx, cmd.PlayerID)
	},
	"reset_strikes": func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result {
		return h.ResetStrikes(ctx, cmd.PlayerID)
	},
	"activate_bell": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.ActivateBell(ctx)
	},
	"reset_bell": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.ResetBell(ctx)
	},
	"start_timer": func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result {
		return h.StartTimer(ctx, cmd.Seconds)
	},
	"stop_timer": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.StopTimer(ctx)
	},
	"update_host_name": func(ctx context.Context, h *dispatch.HostDispatcher, cmd Command) dispatch.Result {
		return h.UpdateHostName(ctx, cmd.Name)
	},
	"provision_video_room": func(ctx context.Context, h *dispatch.HostDispatcher, _ Command) dispatch.Result {
		return h.ProvisionVideoRoom(ctx)
	},
}

var playerCommands = map[string]playerCommand{
	"use_special_button": func(ctx context.Context, p *dispatch.PlayerDispatcher, cmd Command) dispatch.Result {
		return p.UseSpecialButton(ctx, cmd.Button)
	},
	"press_bell": func(ctx context.Context, p *dispatch.PlayerDispatcher, _ Command) dispatch.Result {
		return p.PressBell(ctx)
	},
	"leave": func(ctx context.Context, p *dispatch.PlayerDispatcher, _ Command) dispatch.Result {
		return p.Leave(ctx)
	},
}

// Execute runs cmd against the session's role dispatcher.
func Execute(ctx context.Context, sess *session.Session, cmd Command) dispatch.Result {
	if h := sess.Host(); h != nil {
		if fn, ok := hostCommands[cmd.Action]; ok {
			return fn(ctx, h, cmd)
		}
	}
	if p := sess.Player(); p != nil {
		if fn, ok := playerCommands[cmd.Action]; ok {
			return fn(ctx, p, cmd)
		}
	}

	_, isHost := hostCommands[cmd.Action]
	_, isPlayer := playerCommands[cmd.Action]
	if isHost || isPlayer {
		return dispatch.Result{Error: fmt.Errorf("%w: %s", ErrForbiddenCommand, cmd.Action)}
	}
	return dispatch.Result{Error: fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Action)}
}

func resultFrame(cmd Command, res dispatch.Result) ResultFrame {
	frame := ResultFrame{
		Type:    FrameResult,
		ID:      cmd.ID,
		Action:  cmd.Action,
		Success: res.Success,
		Applied: res.Applied,
	}
	if res.Error != nil {
		frame.Error = res.Error.Error()
	}
	return frame
}

package models

import "errors"

var (
	ErrInvalidSettings    = errors.New("invalid segment settings")
	ErrGameNotFound       = errors.New("game not found")
	ErrInvalidGameID      = errors.New("invalid game id")
	ErrGameExists         = errors.New("game already exists")
	ErrBellAlreadyClaimed = errors.New("bell already claimed")
	ErrInvalidRole        = errors.New("invalid participant role")
	ErrInvalidHostCode    = errors.New("invalid host code")
	ErrNotEnoughPlayers   = errors.New("not enough connected players")
)

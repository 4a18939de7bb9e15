package dispatch

import (
	"context"
	"errors"
	"fmt"
)

// ErrVideoUnavailable is returned when no video provider is configured.
var ErrVideoUnavailable = errors.New("video provider not configured")

// VideoService is the video conferencing provider.
type VideoService interface {
	CreateRoom(ctx context.Context, roomName string) (string, error)
	CheckRoom(ctx context.Context, roomName string) (url string, exists bool, err error)
	IssueToken(ctx context.Context, room, user string, isHost, isObserver bool) (string, error)
}

// RoomName is the provider room used by a game.
func RoomName(gameID string) string {
	return "thirty-" + gameID
}

func issueToken(ctx context.Context, video VideoService, gameID, user string, isHost, isObserver bool) (string, error) {
	if video == nil {
		return "", ErrVideoUnavailable
	}
	token, err := video.IssueToken(ctx, RoomName(gameID), user, isHost, isObserver)
	if err != nil {
		return "", fmt.Errorf("issue video token: %w", err)
	}
	return token, nil
}

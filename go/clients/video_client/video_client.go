package video_client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Kasco23/thirty-challenge-code-sub000/go/clients"
)

var ErrEmptyResponse = errors.New("video provider returned an empty response")

type VideoClient struct {
	*clients.BaseClient
}

func NewVideoClient(baseURL, apiKey string) *VideoClient {
	client := &VideoClient{
		BaseClient: clients.NewBaseClient(strings.TrimRight(baseURL, "/")),
	}

	if apiKey != "" {
		client.SetHeader(APIKeyHeader, apiKey)
	}

	return client
}

type createRoomRequest struct {
	RoomName string `json:"roomName"`
}

type createRoomResponse struct {
	URL string `json:"url"`
}

type checkRoomResponse struct {
	Exists bool   `json:"exists"`
	URL    string `json:"url,omitempty"`
}

type tokenRequest struct {
	Room       string `json:"room"`
	User       string `json:"user"`
	IsHost     bool   `json:"isHost"`
	IsObserver bool   `json:"isObserver"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// CreateRoom provisions a room and returns its join URL.
func (c *VideoClient) CreateRoom(ctx context.Context, roomName string) (string, error) {
	var resp createRoomResponse
	if err := c.PostJSON(ctx, CreateRoomEndpoint, createRoomRequest{RoomName: roomName}, &resp); err != nil {
		return "", fmt.Errorf("create room %s: %w", roomName, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("create room %s: %w", roomName, ErrEmptyResponse)
	}
	return resp.URL, nil
}

// CheckRoom reports whether a room exists and its URL when it does.
func (c *VideoClient) CheckRoom(ctx context.Context, roomName string) (string, bool, error) {
	var resp checkRoomResponse
	endpoint := CheckRoomEndpoint + "?roomName=" + url.QueryEscape(roomName)
	err := c.GetJSON(ctx, endpoint, &resp)
	if clients.IsStatus(err, http.StatusNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check room %s: %w", roomName, err)
	}
	return resp.URL, resp.Exists, nil
}

// IssueToken returns a meeting token for user in room.
func (c *VideoClient) IssueToken(ctx context.Context, room, user string, isHost, isObserver bool) (string, error) {
	var resp tokenResponse
	req := tokenRequest{Room: room, User: user, IsHost: isHost, IsObserver: isObserver}
	if err := c.PostJSON(ctx, TokenEndpoint, req, &resp); err != nil {
		return "", fmt.Errorf("issue token for %s: %w", user, err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("issue token for %s: %w", user, ErrEmptyResponse)
	}
	return resp.Token, nil
}

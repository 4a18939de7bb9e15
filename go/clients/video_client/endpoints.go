package video_client

const (
	// API Endpoints
	CreateRoomEndpoint = "/create-room"
	CheckRoomEndpoint  = "/check-room"
	TokenEndpoint      = "/video-token"

	// Headers
	APIKeyHeader = "X-API-Key"
)

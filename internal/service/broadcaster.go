package service

// Broadcaster pushes events to a session's connected viewer
type Broadcaster interface {
	BroadcastToSession(sessionID string, msgType string, payload interface{})
}

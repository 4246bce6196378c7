package model

// WebSocket message types
const (
	WSMessageTypeStatus = "status"
	WSMessageTypePing   = "ping"
	WSMessageTypePong   = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// JobUpdate is published on the job update channel whenever a job changes
// lifecycle state.
type JobUpdate struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// WSStatusMessage is what websocket clients receive for a job update.
type WSStatusMessage struct {
	Type   string    `json:"type"`
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

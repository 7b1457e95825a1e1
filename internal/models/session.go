package models

import "time"

// SessionMessage is one entry in a session's mutable ordered log, totally
// ordered by append.
type SessionMessage struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	ToolsUsed []string               `json:"tools_used,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Session is a session transcript addressed under
// viking://session/<space>/<session_id>.
type Session struct {
	SessionID string           `json:"session_id"`
	Space     string           `json:"space"`
	Messages  []SessionMessage `json:"messages"`
	Committed bool             `json:"committed"`
	CreatedAt time.Time        `json:"created_at"`
}

// ExtractedMemory is one memory consolidated out of a committed session
// transcript.
type ExtractedMemory struct {
	URI       string    `json:"uri"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
	FromSession string  `json:"from_session"`
}

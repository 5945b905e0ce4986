package domain

// Viewer is one member of a session audience.
type Viewer struct {
	UserID          string `json:"userId"`
	Username        string `json:"username"`
	IsAdmin         bool   `json:"isAdmin"`
	ConsumedSeconds int    `json:"consumedSeconds"`
}

// SessionDetail is the subset of the session resource the moderator view needs.
type SessionDetail struct {
	ID                  string
	BroadcasterID       string
	BroadcasterUsername string
	IsPrivate           bool
	Viewers             []Viewer
}

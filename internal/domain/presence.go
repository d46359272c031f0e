package domain

// Activity labels broadcast with presence
const (
	ActivityActive = "active"
	ActivityAway   = "away"
)

type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// PresenceInfo is the last reported location and activity of a user.
// Each update replaces the previous one wholesale.
type PresenceInfo struct {
	UserID    string     `json:"userId" validate:"required"`
	Page      string     `json:"page"`
	Section   string     `json:"section,omitempty"`
	Activity  string     `json:"activity"`
	Timestamp int64      `json:"timestamp"`
	Cursor    *Cursor    `json:"cursor,omitempty"`
	Selection *Selection `json:"selection,omitempty"`
}

func (p PresenceInfo) Clone() PresenceInfo {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	if p.Selection != nil {
		s := *p.Selection
		p.Selection = &s
	}
	return p
}

// SystemAlert is pushed by the backend to every connected client
type SystemAlert struct {
	Severity NotificationType `json:"severity,omitempty" validate:"omitempty,oneof=info success warning error system"`
	Title    string           `json:"title" validate:"required"`
	Message  string           `json:"message"`
}

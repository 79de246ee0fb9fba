package models

import "time"

type Token struct {
	TokenID       string     `json:"token_id"`
	Number        int        `json:"number"`
	LocationID    string     `json:"location_id"`
	Contact       string     `json:"contact"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	Channel       string     `json:"channel"`
	Paid          bool       `json:"paid"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Emergency     bool       `json:"emergency"`
	Priority      bool       `json:"priority"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusPending    = "pending"
	StatusWaiting    = "waiting"
	StatusTimeToMove = "time_to_move"
	StatusArrived    = "arrived"
	StatusInSession  = "in_session"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusEmergency  = "emergency"
	StatusSkipped    = "skipped"
)

const (
	ChannelWalkIn = "walkin"
	ChannelRemote = "remote"
)

// Terminal reports whether a status has no outgoing transition.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

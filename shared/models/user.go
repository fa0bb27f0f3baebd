package models

import "time"

// User holds per-user counters and the ban flag
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"display_name"`
	LastSeen    time.Time `json:"last_seen"`
	Banned      bool      `json:"banned"`
	BanReason   string    `json:"ban_reason,omitempty"`
	Submissions int       `json:"submissions"`
	Approvals   int       `json:"approvals"`
	Rejections  int       `json:"rejections"`
	Bids        int       `json:"bids"`
	Wins        int       `json:"wins"`
}

// UserCounter names one of the running counters on a User
type UserCounter string

// UserCounter constants
const (
	CounterSubmissions UserCounter = "submissions_count"
	CounterApprovals   UserCounter = "approved_count"
	CounterRejections  UserCounter = "rejected_count"
	CounterBids        UserCounter = "bids_count"
	CounterWins        UserCounter = "wins_count"
)

// Identity is the acting user as reported by the transport
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name"`
}

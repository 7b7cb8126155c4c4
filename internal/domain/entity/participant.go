package entity

import "time"

type Role string

const (
	RoleDriver Role = "driver"
	RoleUser   Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleDriver || r == RoleUser
}

// Profile is the slice of a driver or user account the chat engine needs.
type Profile struct {
	ID        string    `json:"id" firestore:"-"`
	Role      Role      `json:"role" firestore:"-"`
	PushToken string    `json:"push_token,omitempty" firestore:"pushToken,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty" firestore:"lastSeen,omitempty"`
}

package models

import "time"

// User represents a chat user. No names are stored.
type User struct {
	ID            string    `bson:"_id" json:"id"`
	IsSuperuser   bool      `bson:"is_superuser" json:"is_superuser"`
	IsBlacklisted bool      `bson:"is_blacklisted" json:"is_blacklisted"`
	Reason        string    `bson:"reason,omitempty" json:"reason,omitempty"` // why the user was blacklisted
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

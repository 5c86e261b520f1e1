package models

import "time"

// ThreadStatus is the state of a complaint thread
type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
)

// Thread is a complaint filed by a user against a group and assigned to one of its admins
type Thread struct {
	ID         int64        `bson:"_id" json:"id"`
	ByUserID   string       `bson:"by_user_id" json:"by_user_id"`
	ForGroupID string       `bson:"for_group_id" json:"for_group_id"`
	AssignedTo string       `bson:"assigned_to" json:"assigned_to"` // Admin.ID
	Status     ThreadStatus `bson:"status" json:"status"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
	ResolvedAt *time.Time   `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}

// HideFrom hides a thread from a user, e.g. when the complaint is about that admin
type HideFrom struct {
	ID       string `bson:"_id" json:"id"`
	UserID   string `bson:"user_id" json:"user_id"`
	ThreadID int64  `bson:"thread_id" json:"thread_id"`
}

// Message is one entry of a thread's conversation
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	ThreadID  int64     `bson:"thread_id" json:"thread_id"`
	AuthorID  string    `bson:"author_id" json:"author_id"`
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

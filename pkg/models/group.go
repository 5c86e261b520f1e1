package models

// Group represents a chat group complaints can be filed against
type Group struct {
	ID         string `bson:"_id" json:"id"`
	Identifier string `bson:"identifier" json:"identifier"` // short name used in commands
}

// Admin registers a user as an admin of a group
type Admin struct {
	ID      string `bson:"_id" json:"id"`
	UserID  string `bson:"user_id" json:"user_id"`
	GroupID string `bson:"group_id" json:"group_id"`
}

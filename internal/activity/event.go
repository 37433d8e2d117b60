package activity

import "time"

type Type string

const (
	LikeCreated    Type = "like.created"
	LikeDeleted    Type = "like.deleted"
	CommentCreated Type = "comment.created"
)

// Event is what subscribers of a post's stream receive, JSON encoded.
type Event struct {
	Type      Type      `json:"type"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	CommentID string    `json:"comment_id,omitempty"`
	At        time.Time `json:"at"`
}

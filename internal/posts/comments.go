package posts

import (
	"context"
	"strings"

	"github.com/iwongu/pottery-app/internal/activity"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/google/uuid"
)

func (s *Service) AddComment(ctx context.Context, postID string, caller users.User, text string) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, apperr.Validation("comment text is required")
	}
	if err := s.postExists(ctx, postID); err != nil {
		return Comment{}, err
	}

	c := Comment{ID: uuid.NewString(), Text: text, OwnerID: caller.ID, Owner: caller, PostID: postID}
	row := s.db.QueryRow(ctx, `
		INSERT INTO comments (id, text, owner_id, post_id)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, c.ID, c.Text, c.OwnerID, c.PostID)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return Comment{}, err
	}

	s.publish(ctx, activity.Event{Type: activity.CommentCreated, PostID: postID, UserID: caller.ID, CommentID: c.ID, At: c.CreatedAt})
	return c, nil
}

// ListComments returns the thread oldest first.
func (s *Service) ListComments(ctx context.Context, postID string, page Page) ([]Comment, error) {
	if err := s.postExists(ctx, postID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.text, c.owner_id, c.post_id, c.created_at,
			u.email, u.name, u.bio, u.profile_photo_filename, u.created_at
		FROM comments c
		JOIN users u ON u.id = c.owner_id
		WHERE c.post_id=$1
		ORDER BY c.created_at ASC
		OFFSET $2 LIMIT $3
	`, postID, page.Skip, page.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.Text, &c.OwnerID, &c.PostID, &c.CreatedAt,
			&c.Owner.Email, &c.Owner.Name, &c.Owner.Bio, &c.Owner.ProfilePhotoFilename, &c.Owner.CreatedAt); err != nil {
			return nil, err
		}
		c.Owner.ID = c.OwnerID
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

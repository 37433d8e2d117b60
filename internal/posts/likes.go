package posts

import (
	"context"
	"time"

	"github.com/iwongu/pottery-app/internal/activity"
	"github.com/iwongu/pottery-app/internal/db"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/google/uuid"
)

// Like records the caller's like. The existence check gives a clean
// Conflict; the (owner_id, post_id) unique constraint is what holds under
// concurrent requests.
func (s *Service) Like(ctx context.Context, postID string, caller users.User) (Like, error) {
	if err := s.postExists(ctx, postID); err != nil {
		return Like{}, err
	}

	var liked bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM likes WHERE owner_id=$1 AND post_id=$2)`, caller.ID, postID).Scan(&liked)
	if err != nil {
		return Like{}, err
	}
	if liked {
		return Like{}, apperr.Conflict("post already liked")
	}

	like := Like{ID: uuid.NewString(), OwnerID: caller.ID, Owner: caller, PostID: postID}
	row := s.db.QueryRow(ctx, `
		INSERT INTO likes (id, owner_id, post_id)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, like.ID, like.OwnerID, like.PostID)
	if err := row.Scan(&like.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Like{}, apperr.Conflict("post already liked")
		}
		return Like{}, err
	}

	s.publish(ctx, activity.Event{Type: activity.LikeCreated, PostID: postID, UserID: caller.ID, At: like.CreatedAt})
	return like, nil
}

func (s *Service) Unlike(ctx context.Context, postID string, caller users.User) error {
	if err := s.postExists(ctx, postID); err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM likes WHERE owner_id=$1 AND post_id=$2`, caller.ID, postID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("like not found")
	}

	s.publish(ctx, activity.Event{Type: activity.LikeDeleted, PostID: postID, UserID: caller.ID, At: time.Now().UTC()})
	return nil
}

func (s *Service) LikeCount(ctx context.Context, postID string) (int64, error) {
	if err := s.postExists(ctx, postID); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM likes WHERE post_id=$1`, postID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

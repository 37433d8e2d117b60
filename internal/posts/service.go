package posts

import (
	"context"
	"log/slog"
	"strings"

	"github.com/iwongu/pottery-app/internal/activity"
	"github.com/iwongu/pottery-app/internal/db"
	"github.com/iwongu/pottery-app/internal/media"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/google/uuid"
)

const postColumns = `p.id, p.title, p.text_content, p.image_filename, p.owner_id, p.is_showcased, p.created_at, p.updated_at`

// ownerColumns embeds the author; u.id is p.owner_id and is not selected.
const ownerColumns = `u.email, u.name, u.bio, u.profile_photo_filename, u.created_at`

// selectPosts yields postColumns, ownerColumns and the like count; callers
// append WHERE and must keep GROUP BY p.id, u.id.
const selectPosts = `SELECT ` + postColumns + `, ` + ownerColumns + `, COUNT(l.id) AS like_count
	FROM posts p
	JOIN users u ON u.id = p.owner_id
	LEFT JOIN likes l ON l.post_id = p.id`

type MediaStore interface {
	Save(ns media.Namespace, u media.Upload) (string, error)
	Delete(ns media.Namespace, filename string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev activity.Event)
}

const defaultHomepageMinLikes = 5

type Service struct {
	db               db.Querier
	media            MediaStore
	events           Publisher
	logger           *slog.Logger
	homepageMinLikes int
}

// NewService builds the content service. events may be nil.
func NewService(db db.Querier, store MediaStore, events Publisher) *Service {
	return &Service{
		db:               db,
		media:            store,
		events:           events,
		logger:           slog.Default(),
		homepageMinLikes: defaultHomepageMinLikes,
	}
}

// WithHomepageMinLikes sets how many liked posts the homepage needs before it
// ranks instead of sampling.
func (s *Service) WithHomepageMinLikes(n int) *Service {
	if n > 0 {
		s.homepageMinLikes = n
	}
	return s
}

// postTargets lists the scan destinations for postColumns and ownerColumns.
func postTargets(p *Post) []any {
	return []any{&p.ID, &p.Title, &p.TextContent, &p.ImageFilename, &p.OwnerID,
		&p.IsShowcased, &p.CreatedAt, &p.UpdatedAt,
		&p.Owner.Email, &p.Owner.Name, &p.Owner.Bio, &p.Owner.ProfilePhotoFilename, &p.Owner.CreatedAt}
}

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var p Post
	err := row.Scan(append(postTargets(&p), &p.LikeCount)...)
	p.Owner.ID = p.OwnerID
	return p, err
}

func (s *Service) GetPost(ctx context.Context, id string) (Post, error) {
	row := s.db.QueryRow(ctx, selectPosts+` WHERE p.id=$1 GROUP BY p.id, u.id`, id)
	p, err := scanPost(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Post{}, apperr.NotFound("post not found")
		}
		return Post{}, err
	}
	return p, nil
}

// getOwned loads the post and checks the caller owns it.
func (s *Service) getOwned(ctx context.Context, id string, caller users.User) (Post, error) {
	p, err := s.GetPost(ctx, id)
	if err != nil {
		return Post{}, err
	}
	if p.OwnerID != caller.ID {
		return Post{}, apperr.Forbidden("not allowed to modify this post")
	}
	return p, nil
}

func (s *Service) CreatePost(ctx context.Context, owner users.User, title string, textContent *string, image *media.Upload) (Post, error) {
	if strings.TrimSpace(title) == "" {
		return Post{}, apperr.Validation("title is required")
	}

	post := Post{
		ID:          uuid.NewString(),
		Title:       title,
		TextContent: textContent,
		OwnerID:     owner.ID,
		Owner:       owner,
	}

	if image != nil {
		if err := media.CheckContentType(*image); err != nil {
			return Post{}, err
		}
		name, err := s.media.Save(media.PostImages, *image)
		if err != nil {
			return Post{}, err
		}
		post.ImageFilename = &name
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO posts (id, title, text_content, image_filename, owner_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING is_showcased, created_at, updated_at
	`, post.ID, post.Title, post.TextContent, post.ImageFilename, post.OwnerID)
	if err := row.Scan(&post.IsShowcased, &post.CreatedAt, &post.UpdatedAt); err != nil {
		if post.ImageFilename != nil {
			s.removeImage(*post.ImageFilename)
		}
		return Post{}, err
	}
	return post, nil
}

// UpdatePost applies patch to a post the caller owns. A new image wins over
// removeImage. The replaced file is deleted only after the row is updated.
func (s *Service) UpdatePost(ctx context.Context, id string, caller users.User, patch Patch, image *media.Upload, removeImage bool) (Post, error) {
	post, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return Post{}, err
	}
	if err := patch.Validate(); err != nil {
		return Post{}, err
	}
	oldImage := post.ImageFilename

	var newImage string
	if image != nil {
		if err := media.CheckContentType(*image); err != nil {
			return Post{}, err
		}
		if err := media.CheckExtension(*image); err != nil {
			return Post{}, err
		}
		newImage, err = s.media.Save(media.PostImages, *image)
		if err != nil {
			return Post{}, err
		}
	}

	patch.Apply(&post)
	switch {
	case newImage != "":
		post.ImageFilename = &newImage
	case removeImage:
		post.ImageFilename = nil
	}

	row := s.db.QueryRow(ctx, `
		UPDATE posts
		SET title=$2, text_content=$3, image_filename=$4, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`, post.ID, post.Title, post.TextContent, post.ImageFilename)
	if err := row.Scan(&post.UpdatedAt); err != nil {
		if newImage != "" {
			s.removeImage(newImage)
		}
		return Post{}, err
	}

	if oldImage != nil && (newImage != "" || removeImage) {
		s.removeImage(*oldImage)
	}
	return post, nil
}

// DeletePost removes the post with its comments and likes, then its image.
// A crash after commit can leave an orphaned file but never a dangling row.
func (s *Service) DeletePost(ctx context.Context, id string, caller users.User) error {
	post, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM comments WHERE post_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM likes WHERE post_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if post.ImageFilename != nil {
		s.removeImage(*post.ImageFilename)
	}
	return nil
}

// SetShowcase is idempotent: asking for the current state writes nothing.
func (s *Service) SetShowcase(ctx context.Context, id string, caller users.User, show bool) (Post, error) {
	post, err := s.getOwned(ctx, id, caller)
	if err != nil {
		return Post{}, err
	}
	if post.IsShowcased == show {
		return post, nil
	}

	row := s.db.QueryRow(ctx, `
		UPDATE posts SET is_showcased=$2, updated_at=now()
		WHERE id=$1
		RETURNING updated_at
	`, id, show)
	if err := row.Scan(&post.UpdatedAt); err != nil {
		return Post{}, err
	}
	post.IsShowcased = show
	return post, nil
}

func (s *Service) ListPosts(ctx context.Context, page Page) ([]Post, error) {
	return s.queryPosts(ctx, selectPosts+`
		GROUP BY p.id, u.id
		ORDER BY p.created_at DESC
		OFFSET $1 LIMIT $2
	`, page.Skip, page.Limit)
}

func (s *Service) ListShowcased(ctx context.Context, userID string, page Page) ([]Post, error) {
	return s.queryPosts(ctx, selectPosts+`
		WHERE p.owner_id=$1 AND p.is_showcased
		GROUP BY p.id, u.id
		ORDER BY p.updated_at DESC
		OFFSET $2 LIMIT $3
	`, userID, page.Skip, page.Limit)
}

func (s *Service) queryPosts(ctx context.Context, sql string, args ...any) ([]Post, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Service) removeImage(name string) {
	if err := s.media.Delete(media.PostImages, name); err != nil {
		s.logger.Warn("post image cleanup failed", "file", name, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, ev activity.Event) {
	if s.events != nil {
		s.events.Publish(ctx, ev)
	}
}

func (s *Service) postExists(ctx context.Context, id string) error {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("post not found")
	}
	return nil
}

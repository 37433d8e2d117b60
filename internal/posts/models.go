package posts

import (
	"strings"
	"time"

	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"
)

// Post carries LikeCount computed at read time; it is not a column.
type Post struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	TextContent   *string    `json:"text_content"`
	ImageFilename *string    `json:"image_filename"`
	OwnerID       string     `json:"owner_id"`
	Owner         users.User `json:"owner"`
	IsShowcased   bool       `json:"is_showcased"`
	LikeCount     int64      `json:"like_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Patch holds the fields a caller sent; nil means leave unchanged.
type Patch struct {
	Title       *string
	TextContent *string
}

func (p Patch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apperr.Validation("title must not be empty")
	}
	return nil
}

func (p Patch) Apply(post *Post) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.TextContent != nil {
		text := *p.TextContent
		post.TextContent = &text
	}
}

type Comment struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	OwnerID   string     `json:"owner_id"`
	Owner     users.User `json:"owner"`
	PostID    string     `json:"post_id"`
	CreatedAt time.Time  `json:"created_at"`
}

type Like struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Owner     users.User `json:"owner"`
	PostID    string     `json:"post_id"`
	CreatedAt time.Time  `json:"created_at"`
}

const maxLimit = 100

// Page is an offset window over a listing.
type Page struct {
	Skip  int
	Limit int
}

func NewPage(skip, limit, defaultLimit int) Page {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Page{Skip: skip, Limit: limit}
}

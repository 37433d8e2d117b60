package posts

import "context"

// HomepagePosts ranks by like count once at least minRated distinct posts
// have a like. Until then it samples posts at random and reports every
// like count as 0, whatever the real count is.
func (s *Service) HomepagePosts(ctx context.Context, limit, minRated int) ([]Post, error) {
	limit = NewPage(0, limit, 10).Limit

	var rated int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(DISTINCT post_id) FROM likes`).Scan(&rated); err != nil {
		return nil, err
	}

	if rated >= int64(minRated) {
		return s.queryPosts(ctx, selectPosts+`
			GROUP BY p.id, u.id
			ORDER BY like_count DESC, p.created_at DESC
			LIMIT $1
		`, limit)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+postColumns+`, `+ownerColumns+`
		FROM posts p
		JOIN users u ON u.id = p.owner_id
		ORDER BY random()
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []Post{}
	for rows.Next() {
		var p Post
		if err := rows.Scan(postTargets(&p)...); err != nil {
			return nil, err
		}
		p.Owner.ID = p.OwnerID
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

package posts

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iwongu/pottery-app/internal/activity"
	"github.com/iwongu/pottery-app/internal/media"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
	"github.com/iwongu/pottery-app/internal/users"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/spf13/afero"
)

var errDB = errors.New("db error")

var (
	owner    = users.User{ID: "user-1", Email: "ada@example.com"}
	stranger = users.User{ID: "user-2", Email: "bo@example.com"}
)

var postCols = []string{"id", "title", "text_content", "image_filename", "owner_id", "is_showcased", "created_at", "updated_at",
	"email", "name", "bio", "profile_photo_filename", "owner_created_at", "like_count"}

var emails = map[string]string{owner.ID: owner.Email, stranger.ID: stranger.Email}

func strPtr(s string) *string { return &s }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func newMemStore() (afero.Fs, *media.Store) {
	fs := afero.NewMemMapFs()
	return fs, media.NewStore(fs, "/uploads")
}

func pngUpload(name string) *media.Upload {
	return &media.Upload{Filename: name, ContentType: "image/png", Body: bytes.NewReader([]byte("png-bytes"))}
}

func storedImages(t *testing.T, fs afero.Fs) int {
	t.Helper()
	entries, err := afero.ReadDir(fs, "/uploads/post_images")
	if err != nil {
		return 0
	}
	return len(entries)
}

type postRow struct {
	id, title, owner string
	text, image      *string
	showcased        bool
	likes            int64
}

func expectGetPost(mock pgxmock.PgxPoolIface, r postRow) {
	now := time.Now()
	mock.ExpectQuery(`WHERE p.id=\$1 GROUP BY p.id`).
		WithArgs(r.id).
		WillReturnRows(pgxmock.NewRows(postCols).
			AddRow(r.id, r.title, r.text, r.image, r.owner, r.showcased, now, now,
				emails[r.owner], (*string)(nil), (*string)(nil), (*string)(nil), now, r.likes))
}

func expectMissingPost(mock pgxmock.PgxPoolIface, id string) {
	mock.ExpectQuery(`WHERE p.id=\$1 GROUP BY p.id`).WithArgs(id).WillReturnError(pgx.ErrNoRows)
}

type recorder struct {
	events []activity.Event
}

func (r *recorder) Publish(_ context.Context, ev activity.Event) {
	r.events = append(r.events, ev)
}

func TestCreatePost(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "Vase", strPtr("wheel thrown"), (*string)(nil), "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"is_showcased", "created_at", "updated_at"}).AddRow(false, now, now))

	svc := NewService(mock, store, nil)
	post, err := svc.CreatePost(context.Background(), owner, "Vase", strPtr("wheel thrown"), nil)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.ID == "" || post.OwnerID != "user-1" || post.LikeCount != 0 || post.ImageFilename != nil {
		t.Fatalf("unexpected post: %+v", post)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreatePostWithImage(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "Bowl", (*string)(nil), pgxmock.AnyArg(), "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"is_showcased", "created_at", "updated_at"}).AddRow(false, now, now))

	svc := NewService(mock, store, nil)
	post, err := svc.CreatePost(context.Background(), owner, "Bowl", nil, pngUpload("bowl.PNG"))
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.ImageFilename == nil || !store.Exists(media.PostImages, *post.ImageFilename) {
		t.Fatalf("expected stored image, got %+v", post.ImageFilename)
	}
}

func TestCreatePostStoresImageUnderImageExtension(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO posts`).
		WithArgs(pgxmock.AnyArg(), "Bowl", (*string)(nil), pgxmock.AnyArg(), "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"is_showcased", "created_at", "updated_at"}).AddRow(false, now, now))

	svc := NewService(mock, store, nil)
	post, err := svc.CreatePost(context.Background(), owner, "Bowl", nil, pngUpload("evil.html"))
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.ImageFilename == nil || filepath.Ext(*post.ImageFilename) != ".png" {
		t.Fatalf("expected a .png name, got %v", post.ImageFilename)
	}
}

func TestCreatePostValidation(t *testing.T) {
	mock := newMock(t)
	fs, store := newMemStore()
	svc := NewService(mock, store, nil)

	if _, err := svc.CreatePost(context.Background(), owner, "   ", nil, nil); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation for blank title, got %v", err)
	}

	doc := &media.Upload{Filename: "notes.png", ContentType: "text/plain", Body: bytes.NewReader(nil)}
	if _, err := svc.CreatePost(context.Background(), owner, "Vase", nil, doc); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation for non-image upload, got %v", err)
	}
	if storedImages(t, fs) != 0 {
		t.Fatalf("rejected upload must not be stored")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected db calls: %v", err)
	}
}

func TestCreatePostInsertFailureRemovesImage(t *testing.T) {
	mock := newMock(t)
	fs, store := newMemStore()

	mock.ExpectQuery(`INSERT INTO posts`).WillReturnError(errDB)

	svc := NewService(mock, store, nil)
	if _, err := svc.CreatePost(context.Background(), owner, "Vase", nil, pngUpload("vase.png")); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
	if n := storedImages(t, fs); n != 0 {
		t.Fatalf("expected saved image removed, %d left", n)
	}
}

func TestUpdatePostPartial(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()

	expectGetPost(mock, postRow{id: "post-1", title: "Old title", owner: "user-1", image: strPtr("old.png"), likes: 4})
	later := time.Now().Add(time.Minute)
	mock.ExpectQuery(`UPDATE posts\s+SET title=\$2, text_content=\$3, image_filename=\$4, updated_at=now\(\)`).
		WithArgs("post-1", "Old title", strPtr("x"), strPtr("old.png")).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(later))

	svc := NewService(mock, store, nil)
	post, err := svc.UpdatePost(context.Background(), "post-1", owner, Patch{TextContent: strPtr("x")}, nil, false)
	if err != nil {
		t.Fatalf("update post: %v", err)
	}
	if post.Title != "Old title" || post.ImageFilename == nil || *post.ImageFilename != "old.png" {
		t.Fatalf("absent fields must be left untouched: %+v", post)
	}
	if post.TextContent == nil || *post.TextContent != "x" || !post.UpdatedAt.Equal(later) || post.LikeCount != 4 {
		t.Fatalf("unexpected post: %+v", post)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdatePostReplacesImage(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	old, err := store.Save(media.PostImages, *pngUpload("old.png"))
	if err != nil {
		t.Fatalf("seed image: %v", err)
	}

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", image: &old})
	mock.ExpectQuery(`UPDATE posts`).
		WithArgs("post-1", "Vase", (*string)(nil), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	svc := NewService(mock, store, nil)
	post, err := svc.UpdatePost(context.Background(), "post-1", owner, Patch{}, pngUpload("new.jpg"), true)
	if err != nil {
		t.Fatalf("update post: %v", err)
	}
	if post.ImageFilename == nil || *post.ImageFilename == old {
		t.Fatalf("new image must win over remove: %+v", post.ImageFilename)
	}
	if !store.Exists(media.PostImages, *post.ImageFilename) {
		t.Fatalf("expected new image stored")
	}
	if store.Exists(media.PostImages, old) {
		t.Fatalf("expected old image deleted")
	}
}

func TestUpdatePostRemovesImage(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	old, _ := store.Save(media.PostImages, *pngUpload("old.png"))

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", image: &old})
	mock.ExpectQuery(`UPDATE posts`).
		WithArgs("post-1", "Vase", (*string)(nil), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	svc := NewService(mock, store, nil)
	post, err := svc.UpdatePost(context.Background(), "post-1", owner, Patch{}, nil, true)
	if err != nil {
		t.Fatalf("update post: %v", err)
	}
	if post.ImageFilename != nil || store.Exists(media.PostImages, old) {
		t.Fatalf("expected image cleared and deleted")
	}
}

func TestUpdatePostFailureKeepsOldImage(t *testing.T) {
	mock := newMock(t)
	fs, store := newMemStore()
	old, _ := store.Save(media.PostImages, *pngUpload("old.png"))

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", image: &old})
	mock.ExpectQuery(`UPDATE posts`).WillReturnError(errDB)

	svc := NewService(mock, store, nil)
	if _, err := svc.UpdatePost(context.Background(), "post-1", owner, Patch{}, pngUpload("new.png"), false); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
	if !store.Exists(media.PostImages, old) {
		t.Fatalf("old image must survive a failed update")
	}
	if n := storedImages(t, fs); n != 1 {
		t.Fatalf("expected new image cleaned up, %d files stored", n)
	}
}

func TestUpdatePostRejectsBadUploads(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	svc := NewService(mock, store, nil)

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1"})
	bmp := &media.Upload{Filename: "x.bmp", ContentType: "image/bmp", Body: bytes.NewReader(nil)}
	if _, err := svc.UpdatePost(context.Background(), "post-1", owner, Patch{}, bmp, false); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected extension rejected, got %v", err)
	}

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1"})
	if _, err := svc.UpdatePost(context.Background(), "post-1", owner, Patch{Title: strPtr("")}, nil, false); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected blank title rejected, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNonOwnerIsForbidden(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	svc := NewService(mock, store, nil)
	ctx := context.Background()
	row := postRow{id: "post-1", title: "Vase", owner: "user-1"}

	expectGetPost(mock, row)
	// an invalid payload still reports Forbidden
	if _, err := svc.UpdatePost(ctx, "post-1", stranger, Patch{Title: strPtr("")}, nil, false); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("update: expected forbidden, got %v", err)
	}
	expectGetPost(mock, row)
	if err := svc.DeletePost(ctx, "post-1", stranger); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("delete: expected forbidden, got %v", err)
	}
	expectGetPost(mock, row)
	if _, err := svc.SetShowcase(ctx, "post-1", stranger, true); !apperr.IsKind(err, apperr.KindForbidden) {
		t.Fatalf("showcase: expected forbidden, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMissingPostIsNotFound(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	svc := NewService(mock, store, nil)
	ctx := context.Background()

	expectMissingPost(mock, "ghost")
	if _, err := svc.GetPost(ctx, "ghost"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	expectMissingPost(mock, "ghost")
	if _, err := svc.UpdatePost(ctx, "ghost", owner, Patch{}, nil, false); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	expectMissingPost(mock, "ghost")
	if err := svc.DeletePost(ctx, "ghost", owner); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
	expectMissingPost(mock, "ghost")
	if _, err := svc.SetShowcase(ctx, "ghost", owner, true); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("showcase: expected not found, got %v", err)
	}
}

func TestDeletePostCascadesAndRemovesImage(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	img, _ := store.Save(media.PostImages, *pngUpload("vase.png"))

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", image: &img})
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM comments WHERE post_id=\$1`).WithArgs("post-1").WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`DELETE FROM likes WHERE post_id=\$1`).WithArgs("post-1").WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM posts WHERE id=\$1`).WithArgs("post-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	svc := NewService(mock, store, nil)
	if err := svc.DeletePost(context.Background(), "post-1", owner); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if store.Exists(media.PostImages, img) {
		t.Fatalf("expected image deleted with post")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeletePostRollsBack(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	img, _ := store.Save(media.PostImages, *pngUpload("vase.png"))

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", image: &img})
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM comments`).WithArgs("post-1").WillReturnError(errDB)
	mock.ExpectRollback()

	svc := NewService(mock, store, nil)
	if err := svc.DeletePost(context.Background(), "post-1", owner); !errors.Is(err, errDB) {
		t.Fatalf("expected db error, got %v", err)
	}
	if !store.Exists(media.PostImages, img) {
		t.Fatalf("image must stay while the row still exists")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetShowcase(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	svc := NewService(mock, store, nil)

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1"})
	mock.ExpectQuery(`UPDATE posts SET is_showcased=\$2, updated_at=now\(\)`).
		WithArgs("post-1", true).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	post, err := svc.SetShowcase(context.Background(), "post-1", owner, true)
	if err != nil || !post.IsShowcased {
		t.Fatalf("showcase: %v %+v", err, post)
	}

	// already showcased: success without a write
	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", showcased: true})
	post, err = svc.SetShowcase(context.Background(), "post-1", owner, true)
	if err != nil || !post.IsShowcased {
		t.Fatalf("repeat showcase: %v", err)
	}

	expectGetPost(mock, postRow{id: "post-1", title: "Vase", owner: "user-1", showcased: true})
	mock.ExpectQuery(`UPDATE posts SET is_showcased`).
		WithArgs("post-1", false).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	post, err = svc.SetShowcase(context.Background(), "post-1", owner, false)
	if err != nil || post.IsShowcased {
		t.Fatalf("unshowcase: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPostsAndShowcased(t *testing.T) {
	mock := newMock(t)
	_, store := newMemStore()
	svc := NewService(mock, store, nil)
	now := time.Now()

	mock.ExpectQuery(`GROUP BY p.id, u.id\s+ORDER BY p.created_at DESC\s+OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 10).
		WillReturnRows(pgxmock.NewRows(postCols).
			AddRow("post-2", "Newer", (*string)(nil), (*string)(nil), "user-1", false, now, now,
				"ada@example.com", (*string)(nil), (*string)(nil), (*string)(nil), now, int64(1)).
			AddRow("post-1", "Older", (*string)(nil), (*string)(nil), "user-1", false, now.Add(-time.Hour), now,
				"ada@example.com", (*string)(nil), (*string)(nil), (*string)(nil), now, int64(0)))

	posts, err := svc.ListPosts(context.Background(), NewPage(-3, 0, 10))
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "post-2" || posts[0].LikeCount != 1 {
		t.Fatalf("unexpected posts: %+v", posts)
	}
	if posts[0].Owner.ID != "user-1" || posts[0].Owner.Email != "ada@example.com" {
		t.Fatalf("expected embedded owner, got %+v", posts[0].Owner)
	}

	mock.ExpectQuery(`WHERE p.owner_id=\$1 AND p.is_showcased\s+GROUP BY p.id, u.id\s+ORDER BY p.updated_at DESC`).
		WithArgs("user-1", 0, 100).
		WillReturnRows(pgxmock.NewRows(postCols))

	showcased, err := svc.ListShowcased(context.Background(), "user-1", NewPage(0, 100, 100))
	if err != nil {
		t.Fatalf("list showcased: %v", err)
	}
	if showcased == nil || len(showcased) != 0 {
		t.Fatalf("expected empty, non-nil list")
	}

	mock.ExpectQuery(`ORDER BY p.created_at DESC`).WillReturnError(errDB)
	if _, err := svc.ListPosts(context.Background(), NewPage(0, 10, 10)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewPage(t *testing.T) {
	cases := []struct {
		skip, limit, def int
		want             Page
	}{
		{0, 0, 10, Page{0, 10}},
		{-5, 20, 10, Page{0, 20}},
		{4, -1, 20, Page{4, 20}},
		{0, 500, 10, Page{0, 100}},
	}
	for _, tc := range cases {
		if got := NewPage(tc.skip, tc.limit, tc.def); got != tc.want {
			t.Fatalf("NewPage(%d,%d,%d) = %+v, want %+v", tc.skip, tc.limit, tc.def, got, tc.want)
		}
	}
}

func TestPatchApply(t *testing.T) {
	post := Post{Title: "Vase", TextContent: strPtr("old")}
	Patch{}.Apply(&post)
	if post.Title != "Vase" || *post.TextContent != "old" {
		t.Fatalf("empty patch changed the post: %+v", post)
	}
	Patch{Title: strPtr("Jar"), TextContent: strPtr("")}.Apply(&post)
	if post.Title != "Jar" || *post.TextContent != "" {
		t.Fatalf("patch not applied: %+v", post)
	}
	if err := (Patch{Title: strPtr(" ")}).Validate(); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected blank title rejected")
	}
}

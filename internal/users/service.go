package users

import (
	"context"
	"log/slog"
	"strings"

	"github.com/iwongu/pottery-app/internal/db"
	"github.com/iwongu/pottery-app/internal/media"
	"github.com/iwongu/pottery-app/internal/shared/apperr"
)

const userColumns = `id, email, name, bio, profile_photo_filename, created_at`

type MediaStore interface {
	Save(ns media.Namespace, u media.Upload) (string, error)
	Delete(ns media.Namespace, filename string) error
}

type Service struct {
	db     db.Querier
	media  MediaStore
	logger *slog.Logger
}

func NewService(db db.Querier, store MediaStore) *Service {
	return &Service{db: db, media: store, logger: slog.Default()}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, NormalizeEmail(email))
	return scanUser(row)
}

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Bio, &u.ProfilePhotoFilename, &u.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, err
	}
	return u, nil
}

// UpdateProfile applies patch to the caller's profile. A new photo replaces
// the old one; clearPhoto drops it when no new photo is sent. The previous
// file is removed only after the row is updated.
func (s *Service) UpdateProfile(ctx context.Context, caller User, patch ProfilePatch, photo *media.Upload, clearPhoto bool) (User, error) {
	user, err := s.GetByID(ctx, caller.ID)
	if err != nil {
		return User{}, err
	}
	oldPhoto := user.ProfilePhotoFilename

	var newPhoto string
	if photo != nil {
		if err := media.CheckContentType(*photo); err != nil {
			return User{}, err
		}
		if err := media.CheckExtension(*photo); err != nil {
			return User{}, err
		}
		newPhoto, err = s.media.Save(media.ProfilePhotos, *photo)
		if err != nil {
			return User{}, err
		}
	}

	patch.Apply(&user)
	switch {
	case newPhoto != "":
		user.ProfilePhotoFilename = &newPhoto
	case clearPhoto:
		user.ProfilePhotoFilename = nil
	}

	_, err = s.db.Exec(ctx, `
		UPDATE users
		SET name=$2, bio=$3, profile_photo_filename=$4
		WHERE id=$1
	`, user.ID, user.Name, user.Bio, user.ProfilePhotoFilename)
	if err != nil {
		if newPhoto != "" {
			s.removePhoto(newPhoto)
		}
		return User{}, err
	}

	if oldPhoto != nil && (newPhoto != "" || clearPhoto) {
		s.removePhoto(*oldPhoto)
	}
	return user, nil
}

func (s *Service) removePhoto(name string) {
	if err := s.media.Delete(media.ProfilePhotos, name); err != nil {
		s.logger.Warn("profile photo cleanup failed", "file", name, "err", err)
	}
}

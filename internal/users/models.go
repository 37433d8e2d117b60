package users

import "time"

// User is the public view of an account; the password hash never leaves the
// auth package.
type User struct {
	ID                   string    `json:"id"`
	Email                string    `json:"email"`
	Name                 *string   `json:"name"`
	Bio                  *string   `json:"bio"`
	ProfilePhotoFilename *string   `json:"profile_photo_filename"`
	CreatedAt            time.Time `json:"created_at"`
}

// ProfilePatch carries the profile fields a caller chose to send. Nil means
// "leave unchanged".
type ProfilePatch struct {
	Name *string
	Bio  *string
}

func (p ProfilePatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = p.Name
	}
	if p.Bio != nil {
		u.Bio = p.Bio
	}
}

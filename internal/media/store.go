// Package media keeps uploaded images on disk under generated names.
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iwongu/pottery-app/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Namespace separates files by purpose; each maps to a directory under the root.
type Namespace string

const (
	PostImages    Namespace = "post_images"
	ProfilePhotos Namespace = "profile_pics"
)

type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// CheckContentType rejects uploads that do not declare an image/* type.
func CheckContentType(u Upload) error {
	if !strings.HasPrefix(strings.ToLower(u.ContentType), "image/") {
		return apperr.Validation("uploaded file is not an image")
	}
	return nil
}

// CheckExtension rejects uploads whose extension is outside .jpg .jpeg .png .gif.
func CheckExtension(u Upload) error {
	if _, ok := allowedExtensions[extension(u.Filename)]; !ok {
		return apperr.Validation("invalid file extension, allowed: .jpg, .jpeg, .png, .gif")
	}
	return nil
}

func extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

var typeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// storedExtension keeps the client's extension only when it is an allowed
// image one; otherwise it follows the declared type, or is empty.
func storedExtension(u Upload) string {
	ext := extension(u.Filename)
	if _, ok := allowedExtensions[ext]; ok {
		return ext
	}
	return typeExtensions[strings.ToLower(u.ContentType)]
}

type Store struct {
	fs   afero.Fs
	root string
}

func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Save writes the upload under a fresh random name and returns that name.
func (s *Store) Save(ns Namespace, u Upload) (string, error) {
	dir := filepath.Join(s.root, string(ns))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	name := uuid.NewString() + storedExtension(u)
	path := filepath.Join(dir, name)
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("could not save image: %w", err)
	}
	if _, err := io.Copy(f, u.Body); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("could not save image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("could not save image: %w", err)
	}
	return name, nil
}

// Delete removes a stored file. A missing file is not an error.
func (s *Store) Delete(ns Namespace, filename string) error {
	if filename == "" {
		return nil
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("invalid media filename %q", filename)
	}
	err := s.fs.Remove(s.Path(ns, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) Exists(ns Namespace, filename string) bool {
	ok, err := afero.Exists(s.fs, s.Path(ns, filename))
	return err == nil && ok
}

func (s *Store) Path(ns Namespace, filename string) string {
	return filepath.Join(s.root, string(ns), filename)
}

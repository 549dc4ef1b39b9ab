// Package artifact stores uploaded binaries (payment proofs, catalog images)
// in a content directory served under a static URL prefix.
package artifact

import (
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/vincent-petithory/dataurl"
)

// Upload rejections.
var (
	ErrInvalidDataURI  = errors.New("invalid data URI")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// Policy restricts what SaveDataURI accepts. Zero values disable a check.
type Policy struct {
	MaxBytes int
	// Types lists accepted MIME types such as "image/png".
	Types []string
}

func (p Policy) check(du *dataurl.DataURL) error {
	if p.MaxBytes > 0 && len(du.Data) > p.MaxBytes {
		return ErrTooLarge
	}
	if len(p.Types) > 0 && !slices.Contains(p.Types, du.MediaType.ContentType()) {
		return errors.Wrap(ErrUnsupportedType, du.MediaType.ContentType())
	}
	return nil
}

// Store writes artifacts below a root directory. Paths returned by Store
// are slash separated and start with the public prefix, so they can be
// handed to clients as-is and fed back to Remove.
type Store struct {
	root   string
	prefix string
}

// New creates the root directory if needed and returns a Store whose paths
// start with prefix (for example "uploads").
func New(root, prefix string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "create artifact root")
	}
	return &Store{root: root, prefix: strings.Trim(prefix, "/")}, nil
}

// Root returns the directory artifacts are written to.
func (s *Store) Root() string { return s.root }

// Prefix returns the public path prefix.
func (s *Store) Prefix() string { return s.prefix }

// IsDataURI reports whether v looks like an inline data URI.
func IsDataURI(v string) bool {
	return strings.HasPrefix(v, "data:")
}

// SaveDataURI decodes a data:<mime>;base64,<payload> value and stores it
// in dir as <name>_<uuid>.<ext>, ext being the MIME subtype.
func (s *Store) SaveDataURI(dir, name, uri string, p Policy) (string, error) {
	if !IsDataURI(uri) {
		return "", ErrInvalidDataURI
	}
	du, err := dataurl.DecodeString(uri)
	if err != nil {
		return "", errors.Wrap(ErrInvalidDataURI, err.Error())
	}
	if err := p.check(du); err != nil {
		return "", err
	}
	return s.Save(dir, name, du.MediaType.Subtype, bytes.NewReader(du.Data))
}

// Save copies r into dir as <name>_<uuid>.<ext>.
func (s *Store) Save(dir, name, ext string, r io.Reader) (string, error) {
	fileName := name + "_" + uuid.New().String() + "." + sanitizeExt(ext)
	rel := path.Join(dir, fileName)
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "create artifact dir")
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "create artifact")
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", errors.Wrap(err, "write artifact")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", errors.Wrap(err, "close artifact")
	}
	return path.Join(s.prefix, rel), nil
}

// Remove deletes a stored artifact. Missing files and empty paths are not
// an error.
func (s *Store) Remove(p string) error {
	full, ok := s.resolve(p)
	if !ok {
		return nil
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove artifact")
	}
	return nil
}

// Exists reports whether p refers to a stored file.
func (s *Store) Exists(p string) bool {
	full, ok := s.resolve(p)
	if !ok {
		return false
	}
	_, err := os.Stat(full)
	return err == nil
}

// Replace runs a scoped artifact swap: write stores the new artifact,
// persist saves the record pointing to it, and only then the old artifact
// is removed. When persist fails the new artifact is removed and the old
// one is kept.
func (s *Store) Replace(old string, write func() (string, error), persist func(newPath string) error) (string, error) {
	newPath, err := write()
	if err != nil {
		return "", err
	}
	if err := persist(newPath); err != nil {
		if rmErr := s.Remove(newPath); rmErr != nil {
			return "", errors.Wrapf(err, "cleanup failed: %v", rmErr)
		}
		return "", err
	}
	if old != "" && old != newPath {
		if err := s.Remove(old); err != nil {
			return newPath, errors.Wrap(err, "remove replaced artifact")
		}
	}
	return newPath, nil
}

// resolve maps a public path back to a file below root, rejecting paths
// that escape it.
func (s *Store) resolve(p string) (string, bool) {
	if p == "" {
		return "", false
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if s.prefix != "" {
		if after, ok := strings.CutPrefix(rel, s.prefix+"/"); ok {
			rel = after
		}
	}
	if rel == "" || rel == "." {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), true
}

func sanitizeExt(ext string) string {
	if i := strings.IndexAny(ext, "+;"); i >= 0 {
		ext = ext[:i]
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "bin"
		}
	}
	if ext == "" {
		return "bin"
	}
	return ext
}

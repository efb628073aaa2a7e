// Package media stores uploaded scan images and profile photos under a
// sandboxed media root. Files are grouped per owner so access checks are a
// path comparison.
package media

import (
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/preprocess"
)

// Top-level directories under the media root.
const (
	UploadsDir       = "uploads"
	ProfilePhotosDir = "profile_photos"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// ErrInvalidPath is returned for paths that are not local to the media root.
var ErrInvalidPath = errors.NewStd("invalid media path")

// Store writes and serves media files inside baseDir.
type Store struct {
	baseDir string
	root    *os.Root
}

// New opens baseDir as the media root, creating it if needed.
func New(baseDir string) (*Store, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	if err := os.MkdirAll(absPath, dirPerm); err != nil {
		return nil, errors.New(fmt.Errorf("failed to create media root: %w", err)).
			Category(errors.CategoryFileIO).
			FileContext(absPath, 0).
			Build()
	}
	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open media root: %w", err)
	}
	return &Store{baseDir: absPath, root: root}, nil
}

// BaseDir returns the absolute media root.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// SaveUpload stores a scan image for userID and returns its media-relative path.
// format is the decoder name reported by preprocess, used for the extension.
func (s *Store) SaveUpload(userID uint, data []byte, format string) (string, error) {
	return s.save(UploadsDir, userID, data, format)
}

// SaveProfilePhoto stores a profile photo for userID.
func (s *Store) SaveProfilePhoto(userID uint, data []byte, format string) (string, error) {
	return s.save(ProfilePhotosDir, userID, data, format)
}

func (s *Store) save(kind string, userID uint, data []byte, format string) (string, error) {
	if userID == 0 {
		return "", errors.NewValidationError("media owner is required")
	}
	dir := path.Join(kind, strconv.FormatUint(uint64(userID), 10))
	rel := path.Join(dir, uuid.NewString()+preprocess.Extension(format))

	if err := s.root.MkdirAll(dir, dirPerm); err != nil {
		return "", s.fileError("create directory", dir, err)
	}

	f, err := s.root.OpenFile(rel, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return "", s.fileError("create file", rel, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.root.Remove(rel)
		return "", s.fileError("write file", rel, err)
	}
	if err := f.Close(); err != nil {
		_ = s.root.Remove(rel)
		return "", s.fileError("close file", rel, err)
	}

	GetLogger().Debug("media file stored",
		logger.String("path", rel),
		logger.Int("bytes", len(data)))
	return rel, nil
}

func (s *Store) fileError(op, rel string, err error) error {
	return errors.New(fmt.Errorf("media: %s: %w", op, err)).
		Component("media").
		Category(errors.CategoryFileIO).
		Context("path", rel).
		Build()
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(rel string) error {
	clean, err := cleanRel(rel)
	if err != nil {
		return err
	}
	if err := s.root.Remove(clean); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.fileError("remove file", clean, err)
	}
	return nil
}

// OwnerOf returns the user id encoded in a stored path.
func OwnerOf(rel string) (uint, bool) {
	clean, err := cleanRel(rel)
	if err != nil {
		return 0, false
	}
	parts := strings.Split(clean, "/")
	if len(parts) != 3 || (parts[0] != UploadsDir && parts[0] != ProfilePhotosDir) {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// URL returns the public URL of a stored path.
func URL(rel string) string {
	if rel == "" {
		return ""
	}
	return "/media/" + strings.TrimPrefix(rel, "/")
}

// Serve writes the file at rel if it belongs to userID. Missing files,
// foreign files and invalid paths all yield 404.
func (s *Store) Serve(c echo.Context, userID uint, rel string) error {
	notFound := echo.NewHTTPError(http.StatusNotFound, "File not found")

	clean, err := cleanRel(rel)
	if err != nil {
		return notFound
	}
	if owner, ok := OwnerOf(clean); !ok || owner != userID {
		return notFound
	}

	f, err := s.root.Open(clean)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			GetLogger().Warn("failed to open media file", logger.String("path", clean), logger.Error(err))
		}
		return notFound
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || !stat.Mode().IsRegular() {
		return notFound
	}

	if contentType := mime.TypeByExtension(path.Ext(clean)); contentType != "" {
		c.Response().Header().Set(echo.HeaderContentType, contentType)
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Response(), c.Request(), path.Base(clean), stat.ModTime(), f)
	return nil
}

// Close releases the media root.
func (s *Store) Close() error {
	return s.root.Close()
}

// cleanRel validates a slash-separated path relative to the media root.
func cleanRel(rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || strings.ContainsRune(rel, 0) || strings.Contains(rel, `\`) {
		return "", ErrInvalidPath
	}
	clean := path.Clean(rel)
	if !filepath.IsLocal(filepath.FromSlash(clean)) {
		return "", ErrInvalidPath
	}
	return clean, nil
}

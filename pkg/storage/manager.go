package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	errs "albumgrab/pkg/errors"
	"albumgrab/pkg/logger"
	"albumgrab/pkg/models"
)

// FailureLogName is the sidecar file written into an album folder when any
// downloads failed
const FailureLogName = "failed.txt"

var unsafeTitleChars = regexp.MustCompile(`[\\/:"*?<>|]+`)

// Manager handles the on-disk layout: one folder per album under the root,
// numbered image files inside it, and the failure sidecar.
type Manager struct {
	root   string
	logger logger.Logger
}

// NewManager creates a storage manager rooted at the given directory
func NewManager(root string, log logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &errs.Error{
			Type:    errs.TypeFilesystem,
			Message: fmt.Sprintf("failed to create output directory: %v", err),
		}
	}

	return &Manager{root: root, logger: log}, nil
}

// Root returns the output root directory
func (m *Manager) Root() string {
	return m.root
}

// SanitizeTitle replaces filesystem-unsafe characters in an album title
// with underscores
func SanitizeTitle(title string) string {
	return unsafeTitleChars.ReplaceAllString(title, "_")
}

// AlbumDir creates (idempotently) and returns the folder for an album title
func (m *Manager) AlbumDir(title string) (string, error) {
	dir := filepath.Join(m.root, SanitizeTitle(title))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &errs.Error{
			Type:    errs.TypeFilesystem,
			Message: fmt.Sprintf("failed to create album directory: %v", err),
		}
	}
	return dir, nil
}

// ImageFilename derives the stable filename for the image at the given
// position in the album's sequence. The name is `{index+1}` zero-padded to
// three digits plus the URL's path extension; extensions that are absent or
// longer than four characters fall back to .jpg. Case is preserved.
func ImageFilename(index int, rawURL string) string {
	ext := ".jpg"

	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e)-1 <= 4 {
			ext = e
		}
	}

	return fmt.Sprintf("%03d%s", index+1, ext)
}

// HasImage reports whether the image at this index already exists on disk
func (m *Manager) HasImage(dir string, index int, rawURL string) bool {
	_, err := os.Stat(filepath.Join(dir, ImageFilename(index, rawURL)))
	return err == nil
}

// SaveImage streams an image body to its destination file. The data is
// written to a temporary file first and renamed into place, so a failed or
// interrupted write never leaves a partial file under the final name.
func (m *Manager) SaveImage(dir string, index int, rawURL string, r io.Reader) error {
	filename := filepath.Join(dir, ImageFilename(index, rawURL))
	tempFile := filename + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return &errs.Error{
			Type:    errs.TypeFilesystem,
			Message: fmt.Sprintf("failed to create file: %v", err),
		}
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return &errs.Error{
			Type:    errs.TypeTransport,
			Message: fmt.Sprintf("failed to stream image data: %v", err),
		}
	}

	if closeErr != nil {
		os.Remove(tempFile)
		return &errs.Error{
			Type:    errs.TypeFilesystem,
			Message: fmt.Sprintf("failed to close file: %v", closeErr),
		}
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return &errs.Error{
			Type:    errs.TypeFilesystem,
			Message: fmt.Sprintf("failed to rename temporary file: %v", err),
		}
	}

	return nil
}

// WriteFailureLog persists the album's failure record as one line per
// failure. Nothing is written when the record is empty; an existing sidecar
// from an earlier run is removed so the file always reflects the last run.
func (m *Manager) WriteFailureLog(dir string, record *models.FailureRecord) error {
	logPath := filepath.Join(dir, FailureLogName)

	if record.Empty() {
		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			m.logger.WarnWithFields("failed to remove stale failure log", map[string]interface{}{
				"path":  logPath,
				"error": err.Error(),
			})
		}
		return nil
	}

	content := strings.Join(record.Lines(), "\n") + "\n"
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		return &errs.Error{
			Type:    errs.TypeFilesystem,
			Message: fmt.Sprintf("failed to write failure log: %v", err),
		}
	}

	return nil
}

// ABOUTME: Attachment stager that writes uploaded payloads to a temp area
// ABOUTME: Generates collision-safe filenames from sanitized name + timestamp + random suffix

package upload

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// unsafeChars matches everything outside the safe filename alphabet
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// StagedFile describes a payload written to the staging area
type StagedFile struct {
	Path string
	Size int64
}

// Stager saves uploaded binary payloads to a process-wide staging directory
// and returns metadata records for the store. Staged files are referenced by
// path from attachment records; the stager never deletes them.
type Stager struct {
	dir    string
	logger *slog.Logger
}

// DefaultDir returns the default staging directory under the OS temp dir
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "chatloom_uploads")
}

// NewStager creates a stager rooted at dir, creating it if needed.
// Pass nil logger for default.
func NewStager(dir string, logger *slog.Logger) (*Stager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	return &Stager{
		dir:    dir,
		logger: logger.With("component", "upload"),
	}, nil
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Stage writes the payload to a collision-safe file in the staging area and
// returns its path and size. The payload is copied from the reader as it is
// consumed; it is never buffered whole in memory. Write failures are
// surfaced, not retried.
func (s *Stager) Stage(originalName string, payload io.Reader) (StagedFile, error) {
	name := SafeFilename(originalName)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return StagedFile{}, fmt.Errorf("creating staged file: %w", err)
	}

	size, err := io.Copy(f, payload)
	if err != nil {
		f.Close()
		os.Remove(path)
		return StagedFile{}, fmt.Errorf("writing staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return StagedFile{}, fmt.Errorf("closing staged file: %w", err)
	}

	s.logger.Info("staged uploaded file", "path", path, "size", size)
	return StagedFile{Path: path, Size: size}, nil
}

// SafeFilename derives a collision-safe staging name from an original
// filename. The stem is stripped to [A-Za-z0-9_-], the extension is kept,
// and a second-resolution timestamp plus a random fragment are appended so
// identically named uploads within the same second cannot collide.
func SafeFilename(originalName string) string {
	ext := filepath.Ext(originalName)
	stem := strings.TrimSuffix(filepath.Base(originalName), ext)
	stem = unsafeChars.ReplaceAllString(stem, "_")
	if stem == "" {
		stem = "upload"
	}

	timestamp := time.Now().Format("20060102_150405")
	nonce := uuid.New().String()[:8]

	return fmt.Sprintf("%s_%s_%s%s", stem, timestamp, nonce, ext)
}

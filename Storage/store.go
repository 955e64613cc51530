// Package Storage keeps patient report files, either on local disk or in a
// Firebase Storage bucket. Paths are slash separated and relative, laid out
// as <patientID>/<YYYY-MM-DD>/<testTimestampMillis>/<file>.
package Storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"time"

	"ArteryPulse/Constants"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidPath = errors.New("invalid path")
)

type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated,omitempty"`
}

type Store interface {
	Save(ctx context.Context, name string, r io.Reader) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns the immediate children of prefix, folders first.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Delete removes a file or a whole folder.
	Delete(ctx context.Context, name string) error
}

// CleanPath normalises a client supplied path and rejects anything that
// could leave the store root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

func PatientFolder(patientID uint) string {
	return fmt.Sprintf("%d", patientID)
}

// TestFolder is where the files of one test taken at t are kept.
func TestFolder(patientID uint, t time.Time) string {
	return path.Join(PatientFolder(patientID), t.Format(Constants.DateFolderLayout), fmt.Sprintf("%d", t.UnixMilli()))
}

// Join cleans each part and joins them.
func Join(parts ...string) (string, error) {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		c, err := CleanPath(part)
		if err != nil {
			return "", err
		}
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	return path.Join(cleaned...), nil
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.IsDir != b.IsDir {
			if a.IsDir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
}

package Storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// LocalStore keeps files under a directory on disk, ./PatientRecords by
// default.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "./PatientRecords"
	}
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create records dir: %w", err)
	}
	return &LocalStore{Root: root}, nil
}

func (s *LocalStore) resolve(name string) (string, string, error) {
	cleaned, err := CleanPath(name)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.Root, filepath.FromSlash(cleaned)), nil
}

func (s *LocalStore) Save(_ context.Context, name string, r io.Reader) error {
	cleaned, full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: empty file name", ErrInvalidPath)
	}
	if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
		return err
	}
	out, err := os.Create(full)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	_, full, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *LocalStore) List(_ context.Context, prefix string) ([]Entry, error) {
	cleaned, full, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(full)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.Name() == ".DS_Store" {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return nil, err
		}
		e := Entry{
			Name:    de.Name(),
			Path:    path.Join(cleaned, de.Name()),
			IsDir:   de.IsDir(),
			Updated: info.ModTime(),
		}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries, nil
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	cleaned, full, err := s.resolve(name)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: refusing to delete the store root", ErrInvalidPath)
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return os.RemoveAll(full)
}

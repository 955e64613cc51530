package Storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
)

// FirebaseStore keeps files in a Firebase Storage bucket under Root.
type FirebaseStore struct {
	Root   string
	bucket *gcs.BucketHandle
}

// NewFirebaseStore opens bucketName, or the app's default bucket when empty.
func NewFirebaseStore(ctx context.Context, app *firebase.App, bucketName, root string) (*FirebaseStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase storage client: %w", err)
	}
	var bucket *gcs.BucketHandle
	if bucketName != "" {
		bucket, err = client.Bucket(bucketName)
	} else {
		bucket, err = client.DefaultBucket()
	}
	if err != nil {
		return nil, fmt.Errorf("firebase storage bucket: %w", err)
	}
	return &FirebaseStore{Root: bucketRoot(root), bucket: bucket}, nil
}

// bucketRoot turns a directory-style root such as ./PatientRecords/ into an
// object key prefix.
func bucketRoot(root string) string {
	return strings.Trim(strings.TrimPrefix(root, "./"), "/")
}

func (s *FirebaseStore) key(name string) (string, error) {
	cleaned, err := CleanPath(name)
	if err != nil {
		return "", err
	}
	return path.Join(s.Root, cleaned), nil
}

func (s *FirebaseStore) relative(key string) string {
	if s.Root == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.Root), "/")
}

func (s *FirebaseStore) Save(ctx context.Context, name string, r io.Reader) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if key == s.Root {
		return fmt.Errorf("%w: empty file name", ErrInvalidPath)
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(path.Ext(key))
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (s *FirebaseStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}
	rc, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return rc, err
}

func (s *FirebaseStore) prefix(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

func (s *FirebaseStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	key, err := s.key(prefix)
	if err != nil {
		return nil, err
	}
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: s.prefix(key), Delimiter: "/"})

	entries := []Entry{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, s.entry(attrs))
	}
	sortEntries(entries)
	return entries, nil
}

// entry converts a listing result. With a delimiter query, folders come back
// as synthetic objects carrying only a Prefix.
func (s *FirebaseStore) entry(attrs *gcs.ObjectAttrs) Entry {
	if attrs.Prefix != "" {
		dir := strings.TrimSuffix(attrs.Prefix, "/")
		return Entry{
			Name:  path.Base(dir),
			Path:  s.relative(dir),
			IsDir: true,
		}
	}
	return Entry{
		Name:    path.Base(attrs.Name),
		Path:    s.relative(attrs.Name),
		Size:    attrs.Size,
		Updated: attrs.Updated,
	}
}

// Delete removes the object at name and everything below it.
func (s *FirebaseStore) Delete(ctx context.Context, name string) error {
	key, err := s.key(name)
	if err != nil {
		return err
	}
	if key == s.Root {
		return fmt.Errorf("%w: refusing to delete the store root", ErrInvalidPath)
	}

	deleted := 0
	if err := s.bucket.Object(key).Delete(ctx); err == nil {
		deleted++
	} else if !errors.Is(err, gcs.ErrObjectNotExist) {
		return err
	}

	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: s.prefix(key)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return err
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return err
		}
		deleted++
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

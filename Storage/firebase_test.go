package Storage

import (
	"context"
	"strings"
	"testing"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketRoot(t *testing.T) {
	assert.Equal(t, "PatientRecords", bucketRoot("./PatientRecords/"))
	assert.Equal(t, "records/arterial", bucketRoot("/records/arterial"))
	assert.Equal(t, "", bucketRoot("./"))
}

func TestFirebaseKeys(t *testing.T) {
	s := &FirebaseStore{Root: "PatientRecords"}

	key, err := s.key(`1\2024-03-01\100/a.json`)
	require.NoError(t, err)
	assert.Equal(t, "PatientRecords/1/2024-03-01/100/a.json", key)
	assert.Equal(t, "1/2024-03-01/100/a.json", s.relative(key))

	root, err := s.key("/")
	require.NoError(t, err)
	assert.Equal(t, "PatientRecords", root)
	assert.Equal(t, "PatientRecords/", s.prefix(root))

	_, err = s.key("1/../2")
	assert.ErrorIs(t, err, ErrInvalidPath)

	bare := &FirebaseStore{}
	key, err = bare.key("1/a.json")
	require.NoError(t, err)
	assert.Equal(t, "1/a.json", key)
	assert.Equal(t, "1/a.json", bare.relative(key))
	assert.Equal(t, "", bare.prefix(""))
}

func TestFirebaseEntries(t *testing.T) {
	s := &FirebaseStore{Root: "PatientRecords"}
	updated := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	entries := []Entry{
		s.entry(&gcs.ObjectAttrs{Name: "PatientRecords/1/notes.txt", Size: 12, Updated: updated}),
		s.entry(&gcs.ObjectAttrs{Prefix: "PatientRecords/1/2024-03-01/"}),
	}
	sortEntries(entries)

	assert.Equal(t, Entry{Name: "2024-03-01", Path: "1/2024-03-01", IsDir: true}, entries[0])
	assert.Equal(t, Entry{Name: "notes.txt", Path: "1/notes.txt", Size: 12, Updated: updated}, entries[1])
}

// Invalid names are rejected before the bucket is touched, so a store without
// a bucket is enough here.
func TestFirebaseRejectsBadPaths(t *testing.T) {
	ctx := context.Background()
	s := &FirebaseStore{Root: "PatientRecords"}

	assert.ErrorIs(t, s.Save(ctx, "", strings.NewReader("x")), ErrInvalidPath)
	assert.ErrorIs(t, s.Save(ctx, "../x", strings.NewReader("x")), ErrInvalidPath)
	assert.ErrorIs(t, s.Delete(ctx, "/"), ErrInvalidPath)
	assert.ErrorIs(t, s.Delete(ctx, "1/.."), ErrInvalidPath)

	_, err := s.Open(ctx, "../secrets")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = s.List(ctx, "1/../..")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

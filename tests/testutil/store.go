package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailgate/internal/store"
)

// NewTestStore opens a fresh in-memory attachment store, closed when the
// test ends.
func NewTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "opening test store")
	t.Cleanup(func() { assert.NoError(t, s.Close(), "closing test store") })

	return s
}

// SeedAttachment stores data under owner/uid/filename and returns the
// stored row.
func SeedAttachment(t testing.TB, s store.Store, owner, uid, filename string, data []byte) store.Attachment {
	t.Helper()

	att := store.Attachment{
		Owner:       owner,
		UID:         uid,
		Filename:    filename,
		ContentType: "application/octet-stream",
		Data:        data,
	}
	require.NoError(t, s.PutAttachment(context.Background(), att))

	got, err := s.GetAttachment(context.Background(), owner, uid, filename)
	require.NoError(t, err)
	return *got
}

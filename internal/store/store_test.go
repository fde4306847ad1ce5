// ABOUTME: Shared test helpers for the SQLite store tests.
// ABOUTME: Builds in-memory stores and seeded fixtures.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCredential(t *testing.T, s *SQLiteStore, botUserID, applicationID, displayName string) {
	t.Helper()
	err := s.CreateBotCredential(context.Background(), &BotCredential{
		BotUserID:     botUserID,
		ApplicationID: applicationID,
		OwnerUserID:   "owner-" + applicationID,
		DisplayName:   displayName,
		SecretHash:    "unused-hash",
	})
	require.NoError(t, err)
}

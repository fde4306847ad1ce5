// ABOUTME: Tests for command registration validation and name resolution.
// ABOUTME: Covers batch atomicity, ambiguity reporting, and scope visibility.

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-chat/bot-gateway/internal/store"
)

func newTestRegistry(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewService(s, nil), s
}

func seedBot(t *testing.T, s *store.SQLiteStore, botUserID, applicationID, displayName string) {
	t.Helper()
	err := s.CreateBotCredential(context.Background(), &store.BotCredential{
		BotUserID:     botUserID,
		ApplicationID: applicationID,
		OwnerUserID:   "owner-1",
		DisplayName:   displayName,
		SecretHash:    "unused",
	})
	require.NoError(t, err)
}

func TestRegisterBulk_Valid(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")

	cmds, err := reg.RegisterBulk(context.Background(), "app-a", store.GlobalScope, []Definition{
		{Name: "ping", Description: "Ping the bot"},
		{Name: "greet", Description: "Greet a user", Options: []store.CommandOption{
			{Name: "target", Type: "user", Required: true},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, cmds, 2)
}

func TestRegisterBulk_InvalidEntryRejectsWholeBatch(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	ctx := context.Background()

	// Establish a known-good set first
	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{
		{Name: "ping", Description: "Ping"},
	})
	require.NoError(t, err)

	// One bad entry in the batch: name with uppercase
	_, err = reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{
		{Name: "roll", Description: "Roll dice"},
		{Name: "Bad", Description: "Invalid name"},
	})
	require.Error(t, err)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	// Neither old state lost nor new set partially applied
	entries, err := reg.List(ctx, store.GlobalScope)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ping", entries[0].Command.Name)
}

func TestRegisterBulk_ValidationFailures(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	ctx := context.Background()

	cases := []struct {
		name string
		defs []Definition
	}{
		{"empty name", []Definition{{Name: "", Description: "d"}}},
		{"name too long", []Definition{{Name: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Description: "d"}}},
		{"uppercase name", []Definition{{Name: "Ping", Description: "d"}}},
		{"empty description", []Definition{{Name: "ping", Description: ""}}},
		{"description too long", []Definition{{Name: "ping", Description: string(make([]byte, 101))}}},
		{"bad option type", []Definition{{Name: "ping", Description: "d", Options: []store.CommandOption{{Name: "x", Type: "float"}}}}},
		{"bad option name", []Definition{{Name: "ping", Description: "d", Options: []store.CommandOption{{Name: "X!", Type: "string"}}}}},
		{"duplicate option", []Definition{{Name: "ping", Description: "d", Options: []store.CommandOption{{Name: "x", Type: "string"}, {Name: "x", Type: "string"}}}}},
		{"duplicate command in batch", []Definition{{Name: "ping", Description: "d"}, {Name: "ping", Description: "d"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, tc.defs)
			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}
}

func TestResolve_Unique(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{
		{Name: "ping", Description: "Ping"},
	})
	require.NoError(t, err)

	res, err := reg.Resolve(ctx, "g1", "ping")
	require.NoError(t, err)
	assert.Equal(t, Unique, res.Kind)
	assert.Equal(t, "app-a", res.ApplicationID)
	assert.Equal(t, "bot-a", res.BotUserID)
	require.NotNil(t, res.Command)
	assert.Equal(t, "ping", res.Command.Name)
}

func TestResolve_NotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)

	res, err := reg.Resolve(context.Background(), "g1", "missing")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Kind)
}

func TestResolve_AmbiguousNamesAllConflicts(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	seedBot(t, s, "bot-b", "app-b", "Beta")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{{Name: "ping", Description: "Alpha ping"}})
	require.NoError(t, err)
	_, err = reg.RegisterBulk(ctx, "app-b", store.GlobalScope, []Definition{{Name: "ping", Description: "Beta ping"}})
	require.NoError(t, err)

	res, err := reg.Resolve(ctx, store.GlobalScope, "ping")
	require.NoError(t, err)
	assert.Equal(t, Ambiguous, res.Kind)
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, res.Conflicts)
}

func TestResolve_UniqueAgainAfterDeletion(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	seedBot(t, s, "bot-b", "app-b", "Beta")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{{Name: "ping", Description: "Alpha ping"}})
	require.NoError(t, err)
	_, err = reg.RegisterBulk(ctx, "app-b", store.GlobalScope, []Definition{{Name: "ping", Description: "Beta ping"}})
	require.NoError(t, err)

	require.NoError(t, reg.DeleteAll(ctx, "app-b", store.GlobalScope))

	res, err := reg.Resolve(ctx, store.GlobalScope, "ping")
	require.NoError(t, err)
	assert.Equal(t, Unique, res.Kind)
	assert.Equal(t, "app-a", res.ApplicationID)
}

func TestResolve_GuildAndGlobalAreAmbiguousTogether(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	seedBot(t, s, "bot-b", "app-b", "Beta")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{{Name: "ping", Description: "Global"}})
	require.NoError(t, err)
	_, err = reg.RegisterBulk(ctx, "app-b", "g1", []Definition{{Name: "ping", Description: "Guild"}})
	require.NoError(t, err)

	// In g1 both registrations are visible, so the name is ambiguous
	res, err := reg.Resolve(ctx, "g1", "ping")
	require.NoError(t, err)
	assert.Equal(t, Ambiguous, res.Kind)

	// Elsewhere only the global registration is visible
	res, err = reg.Resolve(ctx, "g2", "ping")
	require.NoError(t, err)
	assert.Equal(t, Unique, res.Kind)
	assert.Equal(t, "app-a", res.ApplicationID)
}

func TestResolve_SameApplicationAtBothScopesIsUnique(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{{Name: "ping", Description: "Global"}})
	require.NoError(t, err)
	_, err = reg.RegisterBulk(ctx, "app-a", "g1", []Definition{{Name: "ping", Description: "Guild override"}})
	require.NoError(t, err)

	// One owner, two scopes: not a conflict, and the guild-scoped
	// registration wins inside the guild
	res, err := reg.Resolve(ctx, "g1", "ping")
	require.NoError(t, err)
	assert.Equal(t, Unique, res.Kind)
	assert.Equal(t, "app-a", res.ApplicationID)
	require.NotNil(t, res.Command)
	assert.Equal(t, "g1", res.Command.GuildID)
	assert.Equal(t, "Guild override", res.Command.Description)

	// Elsewhere the global registration serves
	res, err = reg.Resolve(ctx, "g2", "ping")
	require.NoError(t, err)
	assert.Equal(t, Unique, res.Kind)
	require.NotNil(t, res.Command)
	assert.Equal(t, store.GlobalScope, res.Command.GuildID)
}

func TestList_SameApplicationAtBothScopesNotFlagged(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{{Name: "ping", Description: "Global"}})
	require.NoError(t, err)
	_, err = reg.RegisterBulk(ctx, "app-a", "g1", []Definition{{Name: "ping", Description: "Guild override"}})
	require.NoError(t, err)

	entries, err := reg.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.IsAmbiguous)
	}
}

func TestList_FlagsAmbiguousWithoutCollapsing(t *testing.T) {
	reg, s := newTestRegistry(t)
	seedBot(t, s, "bot-a", "app-a", "Alpha")
	seedBot(t, s, "bot-b", "app-b", "Beta")
	ctx := context.Background()

	_, err := reg.RegisterBulk(ctx, "app-a", store.GlobalScope, []Definition{
		{Name: "ping", Description: "Alpha ping"},
		{Name: "roll", Description: "Alpha roll"},
	})
	require.NoError(t, err)
	_, err = reg.RegisterBulk(ctx, "app-b", store.GlobalScope, []Definition{
		{Name: "ping", Description: "Beta ping"},
	})
	require.NoError(t, err)

	entries, err := reg.List(ctx, store.GlobalScope)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	ambiguous := 0
	for _, e := range entries {
		if e.Command.Name == "ping" {
			assert.True(t, e.IsAmbiguous)
			ambiguous++
		} else {
			assert.False(t, e.IsAmbiguous)
		}
	}
	assert.Equal(t, 2, ambiguous)
}

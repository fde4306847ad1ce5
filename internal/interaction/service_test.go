// ABOUTME: Tests for the interaction lifecycle service.
// ABOUTME: Covers resolution gating, option mapping, claiming, and timeouts.

package interaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-chat/bot-gateway/internal/bus"
	"github.com/hearth-chat/bot-gateway/internal/event"
	"github.com/hearth-chat/bot-gateway/internal/registry"
	"github.com/hearth-chat/bot-gateway/internal/store"
)

// recordingNotifier captures delivery-path hand-offs.
type recordingNotifier struct {
	mu        sync.Mutex
	delivered []*store.Interaction
	timeouts  []*store.Interaction
}

func (n *recordingNotifier) DeliverResponse(_ context.Context, inter *store.Interaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, inter)
}

func (n *recordingNotifier) NotifyTimeout(_ context.Context, inter *store.Interaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timeouts = append(n.timeouts, inter)
}

func (n *recordingNotifier) deliveredCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.delivered)
}

func (n *recordingNotifier) timeoutCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timeouts)
}

type fixture struct {
	service  *Service
	store    *store.SQLiteStore
	bus      *bus.Bus
	notifier *recordingNotifier
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b := bus.New(nil)
	t.Cleanup(b.Close)

	notifier := &recordingNotifier{}
	reg := registry.NewService(s, nil)
	svc := NewService(reg, s, b, notifier, timeout, 5*time.Minute, nil)
	t.Cleanup(svc.Close)

	return &fixture{service: svc, store: s, bus: b, notifier: notifier}
}

func (f *fixture) seedCommand(t *testing.T, botUserID, applicationID, displayName, name string, options ...store.CommandOption) {
	t.Helper()
	ctx := context.Background()
	err := f.store.CreateBotCredential(ctx, &store.BotCredential{
		BotUserID:     botUserID,
		ApplicationID: applicationID,
		OwnerUserID:   "owner-1",
		DisplayName:   displayName,
		SecretHash:    "unused",
	})
	require.NoError(t, err)
	err = f.store.ReplaceCommands(ctx, applicationID, store.GlobalScope, []store.SlashCommand{
		{Name: name, Description: "test command", Options: options},
	})
	require.NoError(t, err)
}

func TestCreate_PublishesToOwner(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	ch, _ := f.bus.Subscribe(ctx, "bot-a")

	id, err := f.service.Create(ctx, CreateRequest{
		CommandName: "ping",
		GuildID:     "g1",
		ChannelID:   "c1",
		UserID:      "u1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case ev := <-ch:
		invoked, ok := ev.(*event.CommandInvoked)
		require.True(t, ok)
		assert.Equal(t, id, invoked.InteractionID)
		assert.Equal(t, "ping", invoked.CommandName)
		assert.Equal(t, "u1", invoked.UserID)
	case <-time.After(time.Second):
		t.Fatal("command_invoked was not published")
	}

	inter, err := f.store.GetInteraction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bot-a", inter.OwnerBotID)
	assert.Equal(t, store.InteractionPending, inter.Status)
}

func TestCreate_MapsPositionalArgs(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "roll",
		store.CommandOption{Name: "sides", Type: "integer", Required: true},
		store.CommandOption{Name: "announce", Type: "boolean"},
	)
	ctx := context.Background()

	ch, _ := f.bus.Subscribe(ctx, "bot-a")

	_, err := f.service.Create(ctx, CreateRequest{
		CommandName: "roll",
		ChannelID:   "c1",
		UserID:      "u1",
		Args:        []string{"20", "true"},
	})
	require.NoError(t, err)

	ev := <-ch
	invoked := ev.(*event.CommandInvoked)
	assert.Equal(t, int64(20), invoked.Options["sides"])
	assert.Equal(t, true, invoked.Options["announce"])
}

func TestCreate_ArgumentErrors(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "roll",
		store.CommandOption{Name: "sides", Type: "integer", Required: true},
	)
	ctx := context.Background()

	cases := []struct {
		name string
		args []string
	}{
		{"missing required", nil},
		{"not an integer", []string{"twenty"}},
		{"too many args", []string{"20", "extra"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Create(ctx, CreateRequest{
				CommandName: "roll", ChannelID: "c1", UserID: "u1", Args: tc.args,
			})
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}
}

func TestCreate_NotFoundWritesNothing(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	_, err := f.service.Create(ctx, CreateRequest{
		CommandName: "missing",
		ChannelID:   "c1",
		UserID:      "u1",
	})
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestCreate_AmbiguousNamesConflictsAndPublishesNothing(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	f.seedCommand(t, "bot-b", "app-b", "Beta", "ping")
	ctx := context.Background()

	chA, _ := f.bus.Subscribe(ctx, "bot-a")
	chB, _ := f.bus.Subscribe(ctx, "bot-b")

	_, err := f.service.Create(ctx, CreateRequest{
		CommandName: "ping",
		ChannelID:   "c1",
		UserID:      "u1",
	})
	require.Error(t, err)

	var ambiguous *AmbiguousCommandError
	require.ErrorAs(t, err, &ambiguous)
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, ambiguous.Bots)

	select {
	case <-chA:
		t.Fatal("no event may be published for an ambiguous invocation")
	case <-chB:
		t.Fatal("no event may be published for an ambiguous invocation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClaimResponse_AcceptedDeliversOnce(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	id, err := f.service.Create(ctx, CreateRequest{CommandName: "ping", ChannelID: "c1", UserID: "u1"})
	require.NoError(t, err)

	status, err := f.service.ClaimResponse(ctx, id, "bot-a", "Pong!", false)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimAccepted, status)
	assert.Equal(t, 1, f.notifier.deliveredCount())

	// Retry is rejected and not re-delivered
	status, err = f.service.ClaimResponse(ctx, id, "bot-a", "Pong again!", false)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimDuplicate, status)
	assert.Equal(t, 1, f.notifier.deliveredCount())
}

func TestClaimResponse_NotOwner(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	id, err := f.service.Create(ctx, CreateRequest{CommandName: "ping", ChannelID: "c1", UserID: "u1"})
	require.NoError(t, err)

	status, err := f.service.ClaimResponse(ctx, id, "bot-b", "hijacked", false)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimNotOwner, status)
	assert.Zero(t, f.notifier.deliveredCount())
}

func TestClaimResponse_ContentValidated(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	id, err := f.service.Create(ctx, CreateRequest{CommandName: "ping", ChannelID: "c1", UserID: "u1"})
	require.NoError(t, err)

	_, err = f.service.ClaimResponse(ctx, id, "bot-a", "", false)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestTimeout_ExpiresAndNotifiesOnce(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	id, err := f.service.Create(ctx, CreateRequest{CommandName: "ping", ChannelID: "c1", UserID: "u1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.notifier.timeoutCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A late claim, even from the true owner, is rejected
	status, err := f.service.ClaimResponse(ctx, id, "bot-a", "too late", false)
	require.NoError(t, err)
	assert.Equal(t, store.ClaimExpired, status)

	// Still exactly one timeout notice
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.notifier.timeoutCount())
}

func TestClaim_SuppressesTimeout(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	id, err := f.service.Create(ctx, CreateRequest{CommandName: "ping", ChannelID: "c1", UserID: "u1"})
	require.NoError(t, err)

	status, err := f.service.ClaimResponse(ctx, id, "bot-a", "Pong!", false)
	require.NoError(t, err)
	require.Equal(t, store.ClaimAccepted, status)

	// Past the timeout window: no timeout notice may fire
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, f.notifier.timeoutCount())
	assert.Equal(t, 1, f.notifier.deliveredCount())
}

func TestGetResponse(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.seedCommand(t, "bot-a", "app-a", "Alpha", "ping")
	ctx := context.Background()

	id, err := f.service.Create(ctx, CreateRequest{CommandName: "ping", ChannelID: "c1", UserID: "u1"})
	require.NoError(t, err)

	// Pending: nothing to retrieve yet
	_, err = f.service.GetResponse(ctx, id)
	assert.ErrorIs(t, err, ErrResponseNotAvailable)

	_, err = f.service.ClaimResponse(ctx, id, "bot-a", "Pong!", true)
	require.NoError(t, err)

	inter, err := f.service.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Pong!", inter.ResponseContent)
	assert.True(t, inter.ResponseEphemeral)

	_, err = f.service.GetResponse(ctx, "missing")
	assert.ErrorIs(t, err, ErrResponseNotAvailable)
}

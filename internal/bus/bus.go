// ABOUTME: In-memory per-bot pub/sub bridging the platform to gateway sessions
// ABOUTME: At-most-once, best-effort delivery with no durable queue or replay

package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hearth-chat/bot-gateway/internal/event"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Bus provides in-memory pub/sub of server events keyed by bot user ID.
// Events published while a bot has no subscriber are dropped; there is
// no replay. Double-subscribing one bot from two sessions is permitted
// (reconnect races); response ownership is enforced downstream.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan event.Server // botUserID -> subID -> ch
	logger      *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]map[string]chan event.Server),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for a bot's topic. Returns a channel
// that receives events and a subscription ID for later unsubscription.
// The subscription is automatically cleaned up when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, botUserID string) (<-chan event.Server, string) {
	subID := uuid.New().String()
	ch := make(chan event.Server, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[botUserID]; !ok {
		b.subscribers[botUserID] = make(map[string]chan event.Server)
	}
	b.subscribers[botUserID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "bot_user_id", botUserID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(botUserID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of a bot's topic.
// Non-blocking: events are dropped for subscribers whose channels are
// full, and dropped entirely when the bot has no subscriber.
func (b *Bus) Publish(botUserID string, ev event.Server) {
	b.mu.RLock()
	subs, ok := b.subscribers[botUserID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan event.Server, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
			// Sent
		default:
			// Subscriber channel full — drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber", "bot_user_id", botUserID)
		}
	}
}

// Unsubscribe removes a subscription. The channel is never closed:
// Publish releases the lock before sending, so a close here could race
// an in-flight send. Removed subscribers stop receiving and detect
// teardown through their own context.
func (b *Bus) Unsubscribe(botUserID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[botUserID]
	if !ok {
		return
	}

	if _, exists := subs[subID]; !exists {
		return
	}

	delete(subs, subID)

	// Clean up empty topic entries
	if len(subs) == 0 {
		delete(b.subscribers, botUserID)
	}

	b.logger.Debug("subscriber removed", "bot_user_id", botUserID, "sub_id", subID)
}

// SubscriberCount reports live subscriptions for a bot.
func (b *Bus) SubscriberCount(botUserID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[botUserID])
}

// Close shuts down the bus. Subscriber channels stay open for the same
// reason as in Unsubscribe; sessions are torn down by their contexts.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for botUserID := range b.subscribers {
		delete(b.subscribers, botUserID)
	}

	b.logger.Debug("bus closed")
}

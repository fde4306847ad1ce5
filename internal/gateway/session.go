// ABOUTME: Per-connection session state machine for one authenticated bot
// ABOUTME: Merges inbound frame handling and bus forwarding into one outbound stream

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/hearth-chat/bot-gateway/internal/auth"
	"github.com/hearth-chat/bot-gateway/internal/event"
	"github.com/hearth-chat/bot-gateway/internal/ratelimit"
	"github.com/hearth-chat/bot-gateway/internal/store"
)

// SessionState tracks a session through its lifecycle. The connecting
// and authenticating phases happen in the upgrade handler before a
// session exists, so a session is born Subscribed.
type SessionState int32

const (
	StateSubscribed SessionState = iota
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateSubscribed:
		return "subscribed"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// outboundBufferSize bounds the merged outbound stream.
const outboundBufferSize = 32

// EventBus is the subscription surface a session needs.
type EventBus interface {
	Subscribe(ctx context.Context, botUserID string) (<-chan event.Server, string)
	Unsubscribe(botUserID, subID string)
}

// RateLimiter admits or denies inbound frames.
type RateLimiter interface {
	Check(ctx context.Context, botUserID, category string) (*ratelimit.Result, error)
}

// ResponseClaimer is the interaction service surface a session needs.
type ResponseClaimer interface {
	ClaimResponse(ctx context.Context, interactionID, botUserID, content string, ephemeral bool) (store.ClaimStatus, error)
}

// ChannelPublisher hands validated bot messages to the platform chat
// path. Channel membership enforcement lives with the chat service.
type ChannelPublisher interface {
	PublishMessage(ctx context.Context, botUserID, channelID, content string) error
}

// intentSet controls which event families a session receives. Message
// and member streams are opt-in; commands, in-band errors, and the
// bot's own guild membership changes are always delivered.
type intentSet struct {
	messages bool
	members  bool
}

// parseIntents reads the ?intents= query value. Absent means commands
// only; unknown names are ignored.
func parseIntents(raw string) intentSet {
	var set intentSet
	for _, name := range strings.Split(raw, ",") {
		switch strings.TrimSpace(name) {
		case "messages":
			set.messages = true
		case "members":
			set.members = true
		}
	}
	return set
}

// wants reports whether the session's intents admit an event.
func (s intentSet) wants(ev event.Server) bool {
	switch ev.(type) {
	case *event.MessageCreated:
		return s.messages
	case *event.MemberJoined, *event.MemberLeft:
		return s.members
	default:
		// command_invoked, error, guild_joined, guild_left
		return true
	}
}

// Session binds one authenticated bot socket to its bus subscription,
// the rate limiter, and the interaction service.
type Session struct {
	id          string
	identity    auth.BotIdentity
	conn        *websocket.Conn
	bus         EventBus
	limiter     RateLimiter
	claims      ResponseClaimer
	channels    ChannelPublisher
	intents     intentSet
	connectedAt time.Time
	logger      *slog.Logger

	state  atomic.Int32
	events <-chan event.Server
	subID  string
	cancel context.CancelFunc
	done   chan struct{}
}

// newSession subscribes the authenticated bot and returns a Subscribed
// session; subscription is part of the same transition that completes
// the upgrade, so there is no authenticated-but-unsubscribed window.
func newSession(ctx context.Context, identity auth.BotIdentity, conn *websocket.Conn, eventBus EventBus, limiter RateLimiter, claims ResponseClaimer, channels ChannelPublisher, intents intentSet, logger *slog.Logger) (*Session, context.Context) {
	sessCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		id:          uuid.New().String(),
		identity:    identity,
		conn:        conn,
		bus:         eventBus,
		limiter:     limiter,
		claims:      claims,
		channels:    channels,
		intents:     intents,
		connectedAt: time.Now(),
		logger: logger.With(
			"component", "session",
			"bot_user_id", identity.BotUserID),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.events, s.subID = eventBus.Subscribe(sessCtx, identity.BotUserID)
	s.state.Store(int32(StateSubscribed))
	return s, sessCtx
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// BotUserID returns the authenticated bot's user ID.
func (s *Session) BotUserID() string {
	return s.identity.BotUserID
}

// close requests session teardown. Safe to call from any goroutine.
func (s *Session) close() {
	s.cancel()
}

// run drives the session until the socket closes or ctx is cancelled.
// It blocks; the caller owns the HTTP handler goroutine.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	out := make(chan event.Server, outboundBufferSize)

	// Inbound duty: read client frames, emit in-band errors
	go func() {
		defer s.cancel()
		for {
			_, data, err := s.conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
					s.logger.Debug("socket read ended", "error", err)
				}
				return
			}
			s.handleFrame(ctx, data, out)
		}
	}()

	// Subscription duty: forward bus events matching the intents
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-s.events:
				if !s.intents.wants(ev) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	// Outbound stream: the single writer on this socket
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case ev := <-out:
			data, err := event.Marshal(ev)
			if err != nil {
				s.logger.Error("marshaling outbound event failed", "error", err)
				continue
			}
			if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Debug("socket write ended", "error", err)
				s.shutdown()
				return
			}
		}
	}
}

// shutdown unsubscribes and closes the socket. Pending interactions and
// their timers are untouched: ownership and timeout are independent of
// connection lifetime.
func (s *Session) shutdown() {
	s.state.Store(int32(StateClosing))
	s.bus.Unsubscribe(s.identity.BotUserID, s.subID)
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.state.Store(int32(StateClosed))
	s.logger.Info("session closed", "duration", time.Since(s.connectedAt))
}

// handleFrame processes one inbound frame. Every failure here is
// in-band: one bad frame must never kill the session.
func (s *Session) handleFrame(ctx context.Context, data []byte, out chan<- event.Server) {
	res, err := s.limiter.Check(ctx, s.identity.BotUserID, ratelimit.CategoryWS)
	if err != nil {
		s.logger.Error("rate limit check failed", "error", err)
		return
	}
	if !res.Allowed {
		s.emit(ctx, out, &event.Error{
			Code:       event.CodeRateLimited,
			Message:    "rate limit exceeded",
			RetryAfter: int(res.RetryAfter.Seconds()),
		})
		return
	}

	ev, err := event.ParseClient(data)
	if err != nil {
		s.emit(ctx, out, &event.Error{
			Code:    event.CodeInvalidMessage,
			Message: err.Error(),
		})
		return
	}

	switch msg := ev.(type) {
	case *event.MessageCreate:
		s.handleMessageCreate(ctx, msg, out)
	case *event.CommandResponse:
		s.handleCommandResponse(ctx, msg, out)
	}
}

func (s *Session) handleMessageCreate(ctx context.Context, msg *event.MessageCreate, out chan<- event.Server) {
	if err := event.ValidateContent(msg.Content); err != nil {
		// Rejected before any broadcast
		s.emit(ctx, out, &event.Error{
			Code:    event.CodeInvalidMessage,
			Message: err.Error(),
		})
		return
	}
	if msg.ChannelID == "" {
		s.emit(ctx, out, &event.Error{
			Code:    event.CodeInvalidMessage,
			Message: "channel_id is required",
		})
		return
	}

	if err := s.channels.PublishMessage(ctx, s.identity.BotUserID, msg.ChannelID, msg.Content); err != nil {
		s.logger.Error("publishing bot message failed",
			"channel_id", msg.ChannelID,
			"error", err)
	}
}

func (s *Session) handleCommandResponse(ctx context.Context, msg *event.CommandResponse, out chan<- event.Server) {
	status, err := s.claims.ClaimResponse(ctx, msg.InteractionID, s.identity.BotUserID, msg.Content, msg.Ephemeral)
	if err != nil {
		s.emit(ctx, out, &event.Error{
			Code:    event.CodeInvalidMessage,
			Message: err.Error(),
		})
		return
	}

	// Claim rejections go to the responding bot only, never the user
	var code, message string
	switch status {
	case store.ClaimAccepted:
		return
	case store.ClaimDuplicate:
		code = event.CodeDuplicateResponse
		message = "Response already provided for this interaction"
	case store.ClaimNotOwner:
		code = event.CodeNotOwner
		message = "interaction is owned by another bot"
	case store.ClaimExpired:
		code = event.CodeInteractionExpired
		message = "interaction timed out before the response arrived"
	default:
		code = event.CodeUnknownInteraction
		message = fmt.Sprintf("unknown interaction %q", msg.InteractionID)
	}
	s.emit(ctx, out, &event.Error{Code: code, Message: message})
}

// emit queues an event onto the outbound stream without blocking past
// session cancellation.
func (s *Session) emit(ctx context.Context, out chan<- event.Server, ev event.Server) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// ABOUTME: Interaction lifecycle service: create, claim, and timeout defense
// ABOUTME: Resolution happens before creation; the store CAS decides every race

package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hearth-chat/bot-gateway/internal/event"
	"github.com/hearth-chat/bot-gateway/internal/registry"
	"github.com/hearth-chat/bot-gateway/internal/store"
)

// Service errors
var (
	// ErrCommandNotFound means no application owns the invoked name
	ErrCommandNotFound = errors.New("command not found")

	// ErrInvalidArguments means the supplied arguments do not fit the
	// command's option definitions
	ErrInvalidArguments = errors.New("invalid command arguments")

	// ErrResponseNotAvailable means no retrievable response exists (not
	// responded, or past the retrieval TTL)
	ErrResponseNotAvailable = errors.New("response not available")
)

// AmbiguousCommandError reports every bot competing for the invoked
// name so the caller can surface the full conflict to the user.
type AmbiguousCommandError struct {
	Name string
	Bots []string
}

func (e *AmbiguousCommandError) Error() string {
	return fmt.Sprintf("command %q is ambiguous between: %s", e.Name, strings.Join(e.Bots, ", "))
}

// Resolver maps a command name to its owning application.
type Resolver interface {
	Resolve(ctx context.Context, guildID, name string) (*registry.Resolution, error)
}

// InteractionStore is the persistence surface the service needs.
type InteractionStore interface {
	CreateInteraction(ctx context.Context, inter *store.Interaction) error
	GetInteraction(ctx context.Context, id string) (*store.Interaction, error)
	ClaimInteractionResponse(ctx context.Context, id, botUserID, content string, ephemeral bool, responseTTL time.Duration) (store.ClaimStatus, error)
	ExpireInteraction(ctx context.Context, id string) (bool, error)
}

// Publisher delivers server events to a bot's topic.
type Publisher interface {
	Publish(botUserID string, ev event.Server)
}

// Notifier is the external real-time delivery path for the invoking
// user: accepted responses and timeout notices go through here.
type Notifier interface {
	DeliverResponse(ctx context.Context, inter *store.Interaction)
	NotifyTimeout(ctx context.Context, inter *store.Interaction)
}

// CreateRequest describes one user-initiated command invocation.
type CreateRequest struct {
	CommandName string
	GuildID     string
	ChannelID   string
	UserID      string
	Args        []string // positional, mapped onto the command's options
}

// Service coordinates interaction creation, response claiming, and the
// timeout defense. Timers are process-local; the store transition is
// the real guard, so replicas can arm timers independently without
// double-notifying.
type Service struct {
	resolver    Resolver
	store       InteractionStore
	bus         Publisher
	notifier    Notifier
	timeout     time.Duration
	responseTTL time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewService creates an interaction service. Pass nil logger for default.
func NewService(resolver Resolver, interactionStore InteractionStore, bus Publisher, notifier Notifier, timeout, responseTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver:    resolver,
		store:       interactionStore,
		bus:         bus,
		notifier:    notifier,
		timeout:     timeout,
		responseTTL: responseTTL,
		logger:      logger.With("component", "interaction"),
		timers:      make(map[string]*time.Timer),
	}
}

// Create resolves the command, creates the interaction with its owner
// recorded in the same write, arms the timeout, and publishes
// command_invoked to the owner's topic. NotFound and Ambiguous return
// before any write or publish.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	res, err := s.resolver.Resolve(ctx, req.GuildID, req.CommandName)
	if err != nil {
		return "", fmt.Errorf("resolving command: %w", err)
	}

	switch res.Kind {
	case registry.NotFound:
		return "", ErrCommandNotFound
	case registry.Ambiguous:
		return "", &AmbiguousCommandError{Name: req.CommandName, Bots: res.Conflicts}
	}

	options, err := mapOptions(res.Command.Options, req.Args)
	if err != nil {
		return "", err
	}

	inter := &store.Interaction{
		ID:          uuid.New().String(),
		CommandName: req.CommandName,
		GuildID:     req.GuildID,
		ChannelID:   req.ChannelID,
		UserID:      req.UserID,
		OwnerBotID:  res.BotUserID,
		Status:      store.InteractionPending,
	}
	if err := s.store.CreateInteraction(ctx, inter); err != nil {
		return "", fmt.Errorf("creating interaction: %w", err)
	}

	s.armTimeout(inter.ID)

	s.bus.Publish(res.BotUserID, &event.CommandInvoked{
		InteractionID: inter.ID,
		CommandName:   req.CommandName,
		GuildID:       req.GuildID,
		ChannelID:     req.ChannelID,
		UserID:        req.UserID,
		Options:       options,
	})

	s.logger.Info("interaction created",
		"interaction_id", inter.ID,
		"command", req.CommandName,
		"owner_bot_id", res.BotUserID)
	return inter.ID, nil
}

// ClaimResponse attempts to fill the interaction's response slot for the
// responding bot. On acceptance the local timer is cancelled and the
// response is handed to the delivery path; every other outcome is
// surfaced to the responding bot only.
func (s *Service) ClaimResponse(ctx context.Context, interactionID, botUserID, content string, ephemeral bool) (store.ClaimStatus, error) {
	if err := event.ValidateContent(content); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	status, err := s.store.ClaimInteractionResponse(ctx, interactionID, botUserID, content, ephemeral, s.responseTTL)
	if err != nil {
		return 0, fmt.Errorf("claiming response: %w", err)
	}

	if status != store.ClaimAccepted {
		s.logger.Debug("response claim rejected",
			"interaction_id", interactionID,
			"bot_user_id", botUserID,
			"status", status.String())
		return status, nil
	}

	s.cancelTimeout(interactionID)

	inter, err := s.store.GetInteraction(ctx, interactionID)
	if err != nil {
		return status, fmt.Errorf("loading claimed interaction: %w", err)
	}
	s.notifier.DeliverResponse(ctx, inter)

	s.logger.Info("response accepted",
		"interaction_id", interactionID,
		"bot_user_id", botUserID)
	return status, nil
}

// GetResponse returns a responded interaction while its retrieval TTL
// holds, for the downstream delivery path.
func (s *Service) GetResponse(ctx context.Context, interactionID string) (*store.Interaction, error) {
	inter, err := s.store.GetInteraction(ctx, interactionID)
	if errors.Is(err, store.ErrInteractionNotFound) {
		return nil, ErrResponseNotAvailable
	}
	if err != nil {
		return nil, err
	}

	if inter.Status != store.InteractionResponded {
		return nil, ErrResponseNotAvailable
	}
	if inter.ResponseExpiresAt != nil && time.Now().After(*inter.ResponseExpiresAt) {
		return nil, ErrResponseNotAvailable
	}
	return inter, nil
}

// Close stops all pending local timers. Interactions stay pending in the
// store; another replica's timer (or a restart) still expires them.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// armTimeout schedules the Pending->Expired transition attempt.
func (s *Service) armTimeout(interactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[interactionID] = time.AfterFunc(s.timeout, func() {
		s.expire(interactionID)
	})
}

// cancelTimeout stops and forgets the local timer. A timer that already
// fired loses the store CAS to the claim, so a stale cancel is harmless.
func (s *Service) cancelTimeout(interactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[interactionID]; ok {
		timer.Stop()
		delete(s.timers, interactionID)
	}
}

// expire runs when the timeout fires. The store transition decides the
// race against a concurrent claim; only the winner notifies the user.
func (s *Service) expire(interactionID string) {
	s.mu.Lock()
	delete(s.timers, interactionID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	flipped, err := s.store.ExpireInteraction(ctx, interactionID)
	if err != nil {
		s.logger.Error("expiring interaction failed",
			"interaction_id", interactionID,
			"error", err)
		return
	}
	if !flipped {
		// A claim won first
		return
	}

	inter, err := s.store.GetInteraction(ctx, interactionID)
	if err != nil {
		s.logger.Error("loading expired interaction failed",
			"interaction_id", interactionID,
			"error", err)
		return
	}
	s.notifier.NotifyTimeout(ctx, inter)

	s.logger.Info("interaction expired", "interaction_id", interactionID)
}

// mapOptions maps positional argument strings onto the command's
// declared options, converting typed values.
func mapOptions(opts []store.CommandOption, args []string) (map[string]any, error) {
	if len(args) > len(opts) {
		return nil, fmt.Errorf("%w: got %d arguments, command takes %d", ErrInvalidArguments, len(args), len(opts))
	}

	options := make(map[string]any, len(args))
	for i, opt := range opts {
		if i >= len(args) {
			if opt.Required {
				return nil, fmt.Errorf("%w: missing required option %q", ErrInvalidArguments, opt.Name)
			}
			continue
		}

		value, err := convertOption(opt, args[i])
		if err != nil {
			return nil, err
		}
		options[opt.Name] = value
	}
	return options, nil
}

func convertOption(opt store.CommandOption, raw string) (any, error) {
	switch opt.Type {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: option %q expects an integer", ErrInvalidArguments, opt.Name)
		}
		return n, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: option %q expects a boolean", ErrInvalidArguments, opt.Name)
		}
		return b, nil
	default:
		// string, user, channel, role pass through as strings
		return raw, nil
	}
}

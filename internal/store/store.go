// ABOUTME: Store interface and domain types for bot-gateway persistence
// ABOUTME: Defines credentials, slash commands, interactions, and rate buckets

package store

import (
	"context"
	"errors"
	"time"
)

// Store errors
var (
	ErrCredentialNotFound  = errors.New("bot credential not found")
	ErrInteractionNotFound = errors.New("interaction not found")
)

// GlobalScope is the guild_id value for globally-registered commands.
const GlobalScope = ""

// BotCredential is a bot's login secret, read by the gateway for
// connection auth. Creation and rotation happen through the bootstrap
// CLI; the gateway itself only reads.
type BotCredential struct {
	BotUserID     string
	ApplicationID string
	OwnerUserID   string
	DisplayName   string
	SecretHash    string
	Generation    int
	CreatedAt     time.Time
}

// CommandOption is one typed parameter of a slash command.
type CommandOption struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// SlashCommand is one registered command definition. GuildID is empty
// for global registrations.
type SlashCommand struct {
	ApplicationID string
	GuildID       string
	Name          string
	Description   string
	Options       []CommandOption
	CreatedAt     time.Time
}

// CommandProvider pairs a registered command with the bot that serves it.
type CommandProvider struct {
	Command        SlashCommand
	BotUserID      string
	BotDisplayName string
}

// InteractionStatus is the lifecycle state of one command invocation.
type InteractionStatus string

const (
	InteractionPending   InteractionStatus = "pending"
	InteractionResponded InteractionStatus = "responded"
	InteractionExpired   InteractionStatus = "expired"
)

// Interaction tracks one user-initiated command call and its at-most-one
// response. OwnerBotID is immutable once the row exists.
type Interaction struct {
	ID                string
	CommandName       string
	GuildID           string
	ChannelID         string
	UserID            string
	OwnerBotID        string
	Status            InteractionStatus
	ResponseContent   string
	ResponseEphemeral bool
	ResponseExpiresAt *time.Time
	CreatedAt         time.Time
}

// ClaimStatus is the outcome of a response-claim attempt.
type ClaimStatus int

const (
	ClaimAccepted ClaimStatus = iota
	ClaimDuplicate
	ClaimNotOwner
	ClaimNotFound
	ClaimExpired
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimAccepted:
		return "accepted"
	case ClaimDuplicate:
		return "duplicate"
	case ClaimNotOwner:
		return "not_owner"
	case ClaimNotFound:
		return "not_found"
	case ClaimExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Store is the persistence interface shared by all gateway replicas.
type Store interface {
	// Bot credentials
	CreateBotCredential(ctx context.Context, cred *BotCredential) error
	GetBotCredential(ctx context.Context, botUserID string) (*BotCredential, error)
	GetBotCredentialByApplication(ctx context.Context, applicationID string) (*BotCredential, error)
	ResetBotCredential(ctx context.Context, botUserID, newSecretHash string) (generation int, err error)

	// Slash commands
	ReplaceCommands(ctx context.Context, applicationID, guildID string, commands []SlashCommand) error
	DeleteCommands(ctx context.Context, applicationID, guildID string) error
	ListCommandsByApplication(ctx context.Context, applicationID, guildID string) ([]SlashCommand, error)
	ListVisibleProviders(ctx context.Context, guildID string) ([]CommandProvider, error)
	FindProvidersByName(ctx context.Context, guildID, name string) ([]CommandProvider, error)

	// Interactions
	CreateInteraction(ctx context.Context, inter *Interaction) error
	GetInteraction(ctx context.Context, id string) (*Interaction, error)
	ClaimInteractionResponse(ctx context.Context, id, botUserID, content string, ephemeral bool, responseTTL time.Duration) (ClaimStatus, error)
	ExpireInteraction(ctx context.Context, id string) (bool, error)

	// Rate buckets
	IncrRateBucket(ctx context.Context, key string, window time.Duration) (count int64, windowStart int64, err error)

	Ping(ctx context.Context) error
	Close() error
}

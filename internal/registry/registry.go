// ABOUTME: Slash command registry with collision-aware name resolution
// ABOUTME: Bulk replacement validates everything before writing anything

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/hearth-chat/bot-gateway/internal/store"
)

// namePattern constrains command and option names.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// validOptionTypes is the closed set of option types.
var validOptionTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"boolean": true,
	"user":    true,
	"channel": true,
	"role":    true,
}

const maxDescriptionLength = 100

// ValidationError reports which definition in a batch failed and why.
// The whole batch is rejected; no partial state change occurs.
type ValidationError struct {
	CommandName string
	Reason      string
}

func (e *ValidationError) Error() string {
	if e.CommandName == "" {
		return fmt.Sprintf("invalid command: %s", e.Reason)
	}
	return fmt.Sprintf("invalid command %q: %s", e.CommandName, e.Reason)
}

// Definition is one command definition submitted for registration.
type Definition struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Options     []store.CommandOption `json:"options,omitempty"`
}

// ResolutionKind classifies a name lookup.
type ResolutionKind int

const (
	// Unique means exactly one application owns the name in scope
	Unique ResolutionKind = iota

	// NotFound means no application owns the name in scope
	NotFound

	// Ambiguous means multiple applications own the name in scope
	Ambiguous
)

// Resolution is the outcome of resolving a command name within a scope.
// For Ambiguous, Conflicts carries every conflicting bot's display name
// so the caller can report the full conflict to the user.
type Resolution struct {
	Kind          ResolutionKind
	ApplicationID string
	BotUserID     string
	Command       *store.SlashCommand
	Conflicts     []string
}

// Entry is one row of an administrative listing. Ambiguous names appear
// once per provider, flagged, never collapsed.
type Entry struct {
	Command        store.SlashCommand
	BotUserID      string
	BotDisplayName string
	IsAmbiguous    bool
}

// CommandStore is the persistence surface the registry needs.
type CommandStore interface {
	ReplaceCommands(ctx context.Context, applicationID, guildID string, commands []store.SlashCommand) error
	DeleteCommands(ctx context.Context, applicationID, guildID string) error
	ListCommandsByApplication(ctx context.Context, applicationID, guildID string) ([]store.SlashCommand, error)
	ListVisibleProviders(ctx context.Context, guildID string) ([]store.CommandProvider, error)
	FindProvidersByName(ctx context.Context, guildID, name string) ([]store.CommandProvider, error)
}

// Service implements command registration and resolution over the store.
type Service struct {
	store  CommandStore
	logger *slog.Logger
}

// NewService creates a registry service. Pass nil logger for default.
func NewService(commandStore CommandStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  commandStore,
		logger: logger.With("component", "registry"),
	}
}

// RegisterBulk validates every definition, then replaces the full
// command set for (application, scope) in one transactional swap. A
// single invalid definition rejects the whole batch with no state
// change. GuildID empty means global scope.
func (s *Service) RegisterBulk(ctx context.Context, applicationID, guildID string, defs []Definition) ([]store.SlashCommand, error) {
	seen := make(map[string]bool, len(defs))
	commands := make([]store.SlashCommand, 0, len(defs))

	for _, def := range defs {
		if err := validateDefinition(def); err != nil {
			return nil, err
		}
		if seen[def.Name] {
			return nil, &ValidationError{CommandName: def.Name, Reason: "duplicate name in batch"}
		}
		seen[def.Name] = true

		commands = append(commands, store.SlashCommand{
			ApplicationID: applicationID,
			GuildID:       guildID,
			Name:          def.Name,
			Description:   def.Description,
			Options:       def.Options,
		})
	}

	if err := s.store.ReplaceCommands(ctx, applicationID, guildID, commands); err != nil {
		return nil, fmt.Errorf("replacing commands: %w", err)
	}

	s.logger.Info("commands registered",
		"application_id", applicationID,
		"guild_id", guildID,
		"count", len(commands))
	return commands, nil
}

// Resolve maps a name to its unique owning application within a guild's
// visibility set, which is the union of the guild's own registrations
// and global ones. Ambiguity is counted per application: a guild-scoped
// and a global registration sharing the name are ambiguous together only
// when they come from different applications. One application holding
// both scopes resolves Unique to its guild-scoped registration.
func (s *Service) Resolve(ctx context.Context, guildID, name string) (*Resolution, error) {
	rows, err := s.store.FindProvidersByName(ctx, guildID, name)
	if err != nil {
		return nil, fmt.Errorf("finding providers: %w", err)
	}
	providers := dedupeByApplication(rows)

	switch len(providers) {
	case 0:
		return &Resolution{Kind: NotFound}, nil
	case 1:
		p := providers[0]
		return &Resolution{
			Kind:          Unique,
			ApplicationID: p.Command.ApplicationID,
			BotUserID:     p.BotUserID,
			Command:       &p.Command,
		}, nil
	default:
		conflicts := make([]string, len(providers))
		for i, p := range providers {
			conflicts[i] = p.BotDisplayName
		}
		return &Resolution{Kind: Ambiguous, Conflicts: conflicts}, nil
	}
}

// List returns every registration visible in scope, one entry per
// provider, with ambiguous names flagged. The flag counts distinct
// applications per name, matching Resolve: one application registering a
// name at both scopes is not ambiguous with itself.
func (s *Service) List(ctx context.Context, guildID string) ([]Entry, error) {
	providers, err := s.store.ListVisibleProviders(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}

	owners := make(map[string]map[string]bool, len(providers))
	for _, p := range providers {
		if owners[p.Command.Name] == nil {
			owners[p.Command.Name] = make(map[string]bool)
		}
		owners[p.Command.Name][p.Command.ApplicationID] = true
	}

	entries := make([]Entry, len(providers))
	for i, p := range providers {
		entries[i] = Entry{
			Command:        p.Command,
			BotUserID:      p.BotUserID,
			BotDisplayName: p.BotDisplayName,
			IsAmbiguous:    len(owners[p.Command.Name]) > 1,
		}
	}
	return entries, nil
}

// dedupeByApplication collapses a provider row set to one row per
// application, preferring the guild-scoped registration when an
// application holds the name at both scopes. Order is preserved.
func dedupeByApplication(rows []store.CommandProvider) []store.CommandProvider {
	providers := make([]store.CommandProvider, 0, len(rows))
	byApp := make(map[string]int, len(rows))

	for _, row := range rows {
		idx, seen := byApp[row.Command.ApplicationID]
		if !seen {
			byApp[row.Command.ApplicationID] = len(providers)
			providers = append(providers, row)
			continue
		}
		if providers[idx].Command.GuildID == "" && row.Command.GuildID != "" {
			providers[idx] = row
		}
	}
	return providers
}

// ListForApplication returns one application's own registrations for a scope.
func (s *Service) ListForApplication(ctx context.Context, applicationID, guildID string) ([]store.SlashCommand, error) {
	return s.store.ListCommandsByApplication(ctx, applicationID, guildID)
}

// DeleteAll removes every registration for (application, scope). Used by
// the application-deletion cascade and the explicit bulk-delete API.
func (s *Service) DeleteAll(ctx context.Context, applicationID, guildID string) error {
	if err := s.store.DeleteCommands(ctx, applicationID, guildID); err != nil {
		return fmt.Errorf("deleting commands: %w", err)
	}
	s.logger.Info("commands deleted", "application_id", applicationID, "guild_id", guildID)
	return nil
}

func validateDefinition(def Definition) error {
	if !namePattern.MatchString(def.Name) {
		return &ValidationError{CommandName: def.Name, Reason: "name must match [a-z0-9_-]{1,32}"}
	}
	if len(def.Description) == 0 || len(def.Description) > maxDescriptionLength {
		return &ValidationError{CommandName: def.Name, Reason: "description must be 1-100 characters"}
	}

	optionNames := make(map[string]bool, len(def.Options))
	for _, opt := range def.Options {
		if !namePattern.MatchString(opt.Name) {
			return &ValidationError{CommandName: def.Name, Reason: fmt.Sprintf("option name %q must match [a-z0-9_-]{1,32}", opt.Name)}
		}
		if !validOptionTypes[opt.Type] {
			return &ValidationError{CommandName: def.Name, Reason: fmt.Sprintf("option %q has unknown type %q", opt.Name, opt.Type)}
		}
		if optionNames[opt.Name] {
			return &ValidationError{CommandName: def.Name, Reason: fmt.Sprintf("duplicate option name %q", opt.Name)}
		}
		optionNames[opt.Name] = true
	}
	return nil
}

// ABOUTME: Slash command persistence with transactional bulk replacement
// ABOUTME: Provider queries join credentials so resolution can name the serving bot

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ReplaceCommands swaps the full command set for (application, scope)
// in one transaction. An empty slice clears the scope.
func (s *SQLiteStore) ReplaceCommands(ctx context.Context, applicationID, guildID string, commands []SlashCommand) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM slash_commands WHERE application_id = ? AND guild_id = ?`,
		applicationID, guildID); err != nil {
		return fmt.Errorf("clearing command scope: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, cmd := range commands {
		options := cmd.Options
		if options == nil {
			options = []CommandOption{}
		}
		optionsJSON, err := json.Marshal(options)
		if err != nil {
			return fmt.Errorf("encoding options for %q: %w", cmd.Name, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO slash_commands (application_id, guild_id, name, description, options_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			applicationID, guildID, cmd.Name, cmd.Description, string(optionsJSON), now); err != nil {
			return fmt.Errorf("inserting command %q: %w", cmd.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing command replacement: %w", err)
	}
	return nil
}

// DeleteCommands removes every command for (application, scope).
func (s *SQLiteStore) DeleteCommands(ctx context.Context, applicationID, guildID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM slash_commands WHERE application_id = ? AND guild_id = ?`,
		applicationID, guildID)
	if err != nil {
		return fmt.Errorf("deleting commands: %w", err)
	}
	return nil
}

// ListCommandsByApplication returns one application's registrations for
// a scope, ordered by name.
func (s *SQLiteStore) ListCommandsByApplication(ctx context.Context, applicationID, guildID string) ([]SlashCommand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT application_id, guild_id, name, description, options_json, created_at
		FROM slash_commands
		WHERE application_id = ? AND guild_id = ?
		ORDER BY name`,
		applicationID, guildID)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	defer rows.Close()

	return scanCommands(rows)
}

// ListVisibleProviders returns every registration visible in a guild
// scope: the guild's own commands plus global ones. Duplicate names
// across providers are returned as-is; ambiguity is the caller's
// business condition to flag.
func (s *SQLiteStore) ListVisibleProviders(ctx context.Context, guildID string) ([]CommandProvider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.application_id, c.guild_id, c.name, c.description, c.options_json, c.created_at,
			b.bot_user_id, b.display_name
		FROM slash_commands c
		JOIN bot_credentials b ON b.application_id = c.application_id
		WHERE c.guild_id = ? OR c.guild_id = ''
		ORDER BY c.name, c.application_id`,
		guildID)
	if err != nil {
		return nil, fmt.Errorf("listing visible providers: %w", err)
	}
	defer rows.Close()

	return scanProviders(rows)
}

// FindProvidersByName returns every provider of a name within a guild's
// visibility set (guild-scoped plus global registrations).
func (s *SQLiteStore) FindProvidersByName(ctx context.Context, guildID, name string) ([]CommandProvider, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.application_id, c.guild_id, c.name, c.description, c.options_json, c.created_at,
			b.bot_user_id, b.display_name
		FROM slash_commands c
		JOIN bot_credentials b ON b.application_id = c.application_id
		WHERE c.name = ? AND (c.guild_id = ? OR c.guild_id = '')
		ORDER BY c.application_id`,
		name, guildID)
	if err != nil {
		return nil, fmt.Errorf("finding providers: %w", err)
	}
	defer rows.Close()

	return scanProviders(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCommands(rows rowScanner) ([]SlashCommand, error) {
	var commands []SlashCommand
	for rows.Next() {
		cmd, err := scanCommand(rows, nil)
		if err != nil {
			return nil, err
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

func scanProviders(rows rowScanner) ([]CommandProvider, error) {
	var providers []CommandProvider
	for rows.Next() {
		var p CommandProvider
		cmd, err := scanCommand(rows, &p)
		if err != nil {
			return nil, err
		}
		p.Command = *cmd
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// scanCommand reads one command row; when provider is non-nil the row
// also carries the joined bot columns.
func scanCommand(rows rowScanner, provider *CommandProvider) (*SlashCommand, error) {
	var cmd SlashCommand
	var optionsJSON, createdAt string

	dest := []any{&cmd.ApplicationID, &cmd.GuildID, &cmd.Name, &cmd.Description, &optionsJSON, &createdAt}
	if provider != nil {
		dest = append(dest, &provider.BotUserID, &provider.BotDisplayName)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning command row: %w", err)
	}

	if err := json.Unmarshal([]byte(optionsJSON), &cmd.Options); err != nil {
		return nil, fmt.Errorf("decoding options for %q: %w", cmd.Name, err)
	}
	cmd.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &cmd, nil
}

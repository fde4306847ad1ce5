// ABOUTME: Bot credential persistence for gateway connection auth
// ABOUTME: Token reset replaces the secret wholesale and bumps the generation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateBotCredential stores a new bot credential.
func (s *SQLiteStore) CreateBotCredential(ctx context.Context, cred *BotCredential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	if cred.Generation == 0 {
		cred.Generation = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_credentials
			(bot_user_id, application_id, owner_user_id, display_name, secret_hash, generation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cred.BotUserID, cred.ApplicationID, cred.OwnerUserID, cred.DisplayName,
		cred.SecretHash, cred.Generation, cred.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting bot credential: %w", err)
	}
	return nil
}

// GetBotCredential looks up a credential by bot user ID.
// Returns ErrCredentialNotFound if no credential exists.
func (s *SQLiteStore) GetBotCredential(ctx context.Context, botUserID string) (*BotCredential, error) {
	return s.getCredential(ctx, "bot_user_id", botUserID)
}

// GetBotCredentialByApplication looks up a credential by application ID.
// Returns ErrCredentialNotFound if no credential exists.
func (s *SQLiteStore) GetBotCredentialByApplication(ctx context.Context, applicationID string) (*BotCredential, error) {
	return s.getCredential(ctx, "application_id", applicationID)
}

func (s *SQLiteStore) getCredential(ctx context.Context, column, value string) (*BotCredential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT bot_user_id, application_id, owner_user_id, display_name, secret_hash, generation, created_at
		FROM bot_credentials WHERE `+column+` = ?`, value)

	var cred BotCredential
	var createdAt string
	err := row.Scan(&cred.BotUserID, &cred.ApplicationID, &cred.OwnerUserID,
		&cred.DisplayName, &cred.SecretHash, &cred.Generation, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying bot credential: %w", err)
	}

	cred.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &cred, nil
}

// ResetBotCredential replaces the secret hash wholesale and bumps the
// generation, invalidating the previous token atomically. Returns the
// new generation.
func (s *SQLiteStore) ResetBotCredential(ctx context.Context, botUserID, newSecretHash string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE bot_credentials
		SET secret_hash = ?, generation = generation + 1
		WHERE bot_user_id = ?
		RETURNING generation`,
		newSecretHash, botUserID)

	var generation int
	err := row.Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCredentialNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resetting bot credential: %w", err)
	}
	return generation, nil
}

// ABOUTME: Interaction lifecycle persistence with a linearizable response claim
// ABOUTME: Claim and expiry are guarded UPDATEs racing over status='pending'

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateInteraction inserts a new pending interaction. The owner is part
// of the same insert: no interaction is ever visible without one.
func (s *SQLiteStore) CreateInteraction(ctx context.Context, inter *Interaction) error {
	if inter.CreatedAt.IsZero() {
		inter.CreatedAt = time.Now().UTC()
	}
	if inter.Status == "" {
		inter.Status = InteractionPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, command_name, guild_id, channel_id, user_id, owner_bot_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inter.ID, inter.CommandName, inter.GuildID, inter.ChannelID,
		inter.UserID, inter.OwnerBotID, string(inter.Status),
		inter.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting interaction: %w", err)
	}
	return nil
}

// GetInteraction looks up an interaction by ID.
// Returns ErrInteractionNotFound if no row exists.
func (s *SQLiteStore) GetInteraction(ctx context.Context, id string) (*Interaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, command_name, guild_id, channel_id, user_id, owner_bot_id,
			status, response_content, response_ephemeral, response_expires_at, created_at
		FROM interactions WHERE id = ?`, id)

	var inter Interaction
	var responseContent, responseExpiresAt sql.NullString
	var createdAt string
	err := row.Scan(&inter.ID, &inter.CommandName, &inter.GuildID, &inter.ChannelID,
		&inter.UserID, &inter.OwnerBotID, &inter.Status,
		&responseContent, &inter.ResponseEphemeral, &responseExpiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInteractionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying interaction: %w", err)
	}

	inter.ResponseContent = responseContent.String
	if responseExpiresAt.Valid {
		if t, err := time.Parse(time.RFC3339, responseExpiresAt.String); err == nil {
			inter.ResponseExpiresAt = &t
		}
	}
	inter.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &inter, nil
}

// ClaimInteractionResponse attempts the single terminal Pending->Responded
// transition. The guarded UPDATE is the compare-and-set: it succeeds only
// while the row is still pending and the claimant is the recorded owner,
// so under concurrent attempts exactly one write lands. A failed claim is
// classified by re-reading the row.
func (s *SQLiteStore) ClaimInteractionResponse(ctx context.Context, id, botUserID, content string, ephemeral bool, responseTTL time.Duration) (ClaimStatus, error) {
	expiresAt := time.Now().UTC().Add(responseTTL).Format(time.RFC3339)

	res, err := s.db.ExecContext(ctx, `
		UPDATE interactions
		SET status = 'responded', response_content = ?, response_ephemeral = ?, response_expires_at = ?
		WHERE id = ? AND status = 'pending' AND owner_bot_id = ?`,
		content, ephemeral, expiresAt, id, botUserID)
	if err != nil {
		return 0, fmt.Errorf("claiming response: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading claim result: %w", err)
	}
	if affected == 1 {
		return ClaimAccepted, nil
	}

	// The claim lost. Classify against the row's current state.
	inter, err := s.GetInteraction(ctx, id)
	if errors.Is(err, ErrInteractionNotFound) {
		return ClaimNotFound, nil
	}
	if err != nil {
		return 0, err
	}

	switch inter.Status {
	case InteractionResponded:
		// Already filled, regardless of who is retrying
		return ClaimDuplicate, nil
	case InteractionExpired:
		return ClaimExpired, nil
	default:
		// Still pending: the guard that failed was the owner check
		return ClaimNotOwner, nil
	}
}

// ExpireInteraction attempts the Pending->Expired transition. Returns
// true only for the caller that actually flipped the row, so timeout
// notices fire exactly once even across replicas. A claim that landed
// first makes this a no-op.
func (s *SQLiteStore) ExpireInteraction(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE interactions SET status = 'expired' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("expiring interaction: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading expiry result: %w", err)
	}
	return affected == 1, nil
}

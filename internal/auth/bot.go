// ABOUTME: Bot token authentication for gateway connections
// ABOUTME: Verifies "{bot_user_id}.{secret}" tokens against stored bcrypt hashes

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hearth-chat/bot-gateway/internal/store"
)

// Bot token errors
var (
	// ErrMalformedToken means the token is not "{bot_user_id}.{secret}"
	ErrMalformedToken = errors.New("malformed bot token")

	// ErrInvalidCredential covers both unknown bot IDs and wrong secrets
	ErrInvalidCredential = errors.New("invalid bot credential")
)

// dummyHash is a fixed bcrypt hash compared against when the bot ID is
// unknown, so lookup-miss and wrong-secret take comparable time and the
// failure does not leak which IDs exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// BotIdentity is the verified identity of an authenticated bot.
type BotIdentity struct {
	BotUserID     string
	ApplicationID string
	DisplayName   string
}

// CredentialStore provides read access to stored bot credentials.
type CredentialStore interface {
	GetBotCredential(ctx context.Context, botUserID string) (*store.BotCredential, error)
}

// Authenticator verifies presented bot tokens. It is read-only and safe
// for concurrent use.
type Authenticator struct {
	creds  CredentialStore
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator backed by the given
// credential store. Pass nil logger for default.
func NewAuthenticator(creds CredentialStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		creds:  creds,
		logger: logger.With("component", "auth"),
	}
}

// Authenticate verifies a raw "{bot_user_id}.{secret}" token and returns
// the bot's identity. Returns ErrMalformedToken if the token shape is
// wrong and ErrInvalidCredential for unknown IDs or secret mismatches.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*BotIdentity, error) {
	botUserID, secret, err := splitToken(rawToken)
	if err != nil {
		return nil, err
	}

	cred, err := a.creds.GetBotCredential(ctx, botUserID)
	if errors.Is(err, store.ErrCredentialNotFound) {
		// Burn comparable time before reporting failure
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(secret))
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("looking up bot credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(secret)); err != nil {
		a.logger.Debug("bot secret mismatch", "bot_user_id", botUserID)
		return nil, ErrInvalidCredential
	}

	return &BotIdentity{
		BotUserID:     cred.BotUserID,
		ApplicationID: cred.ApplicationID,
		DisplayName:   cred.DisplayName,
	}, nil
}

// splitToken splits a raw token on the first '.' into ID and secret.
func splitToken(raw string) (botUserID, secret string, err error) {
	botUserID, secret, found := strings.Cut(raw, ".")
	if !found || botUserID == "" || secret == "" {
		return "", "", ErrMalformedToken
	}
	return botUserID, secret, nil
}

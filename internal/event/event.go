// ABOUTME: Wire envelope types for the bot gateway protocol
// ABOUTME: Closed tagged unions per direction with a JSON type discriminator

package event

import (
	"errors"
	"fmt"
)

// Event type discriminators, carried in the "type" field of every frame.
const (
	TypeCommandInvoked  = "command_invoked"
	TypeMessageCreated  = "message_created"
	TypeGuildJoined     = "guild_joined"
	TypeGuildLeft       = "guild_left"
	TypeMemberJoined    = "member_joined"
	TypeMemberLeft      = "member_left"
	TypeError           = "error"
	TypeMessageCreate   = "message_create"
	TypeCommandResponse = "command_response"
)

// In-band error codes delivered on an otherwise-healthy connection.
const (
	CodeRateLimited        = "rate_limited"
	CodeInvalidMessage     = "invalid_message"
	CodeDuplicateResponse  = "duplicate_response"
	CodeNotOwner           = "not_owner"
	CodeUnknownInteraction = "unknown_interaction"
	CodeInteractionExpired = "interaction_expired"
)

// Parse errors
var (
	ErrMalformed   = errors.New("malformed event frame")
	ErrUnknownType = errors.New("unknown event type")
)

// MaxContentLength is the upper bound for message and response content.
const MaxContentLength = 4000

// ValidateContent checks message/response content against the 1-4000
// character limits. Length is counted in Unicode code points, not bytes.
func ValidateContent(content string) error {
	n := len([]rune(content))
	if n == 0 {
		return errors.New("content must not be empty")
	}
	if n > MaxContentLength {
		return fmt.Errorf("content exceeds %d characters", MaxContentLength)
	}
	return nil
}

// ABOUTME: Outbound (server-to-bot) gateway events and their JSON encoding
// ABOUTME: Marshal wraps each variant in the {"type": ...} wire envelope

package event

import (
	"encoding/json"
	"fmt"
)

// Server is an outbound gateway event. The union is closed: every variant
// lives in this package and Marshal switches over all of them.
type Server interface {
	serverEvent()
}

// CommandInvoked tells the owning bot that a user invoked one of its
// slash commands.
type CommandInvoked struct {
	InteractionID string         `json:"interaction_id"`
	CommandName   string         `json:"command_name"`
	GuildID       string         `json:"guild_id,omitempty"`
	ChannelID     string         `json:"channel_id"`
	UserID        string         `json:"user_id"`
	Options       map[string]any `json:"options"`
}

// MessageCreated mirrors a platform chat message into the bot's stream.
type MessageCreated struct {
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}

// GuildJoined signals that the bot was installed into a guild.
type GuildJoined struct {
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`
}

// GuildLeft signals that the bot was removed from a guild.
type GuildLeft struct {
	GuildID string `json:"guild_id"`
}

// MemberJoined signals a member joining a guild the bot is installed in.
type MemberJoined struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

// MemberLeft signals a member leaving a guild the bot is installed in.
type MemberLeft struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

// Error is an in-band runtime error. RetryAfter is seconds and only set
// for rate_limited.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (*CommandInvoked) serverEvent() {}
func (*MessageCreated) serverEvent() {}
func (*GuildJoined) serverEvent()    {}
func (*GuildLeft) serverEvent()      {}
func (*MemberJoined) serverEvent()   {}
func (*MemberLeft) serverEvent()     {}
func (*Error) serverEvent()          {}

// Marshal encodes a server event as a wire frame with the type
// discriminator spliced in. Embedding flattens the variant's fields
// alongside "type" in the same JSON object.
func Marshal(ev Server) ([]byte, error) {
	type frame struct {
		Type string `json:"type"`
	}
	switch e := ev.(type) {
	case *CommandInvoked:
		return json.Marshal(struct {
			frame
			*CommandInvoked
		}{frame{TypeCommandInvoked}, e})
	case *MessageCreated:
		return json.Marshal(struct {
			frame
			*MessageCreated
		}{frame{TypeMessageCreated}, e})
	case *GuildJoined:
		return json.Marshal(struct {
			frame
			*GuildJoined
		}{frame{TypeGuildJoined}, e})
	case *GuildLeft:
		return json.Marshal(struct {
			frame
			*GuildLeft
		}{frame{TypeGuildLeft}, e})
	case *MemberJoined:
		return json.Marshal(struct {
			frame
			*MemberJoined
		}{frame{TypeMemberJoined}, e})
	case *MemberLeft:
		return json.Marshal(struct {
			frame
			*MemberLeft
		}{frame{TypeMemberLeft}, e})
	case *Error:
		return json.Marshal(struct {
			frame
			*Error
		}{frame{TypeError}, e})
	default:
		return nil, fmt.Errorf("unhandled server event %T", ev)
	}
}

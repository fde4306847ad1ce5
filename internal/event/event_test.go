// ABOUTME: Tests for the gateway wire envelope encoding and decoding.
// ABOUTME: Validates type dispatch, malformed frames, and content limits.

package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClient_MessageCreate(t *testing.T) {
	ev, err := ParseClient([]byte(`{"type":"message_create","channel_id":"c1","content":"hello"}`))
	require.NoError(t, err)

	msg, ok := ev.(*MessageCreate)
	require.True(t, ok)
	assert.Equal(t, "c1", msg.ChannelID)
	assert.Equal(t, "hello", msg.Content)
}

func TestParseClient_CommandResponse(t *testing.T) {
	ev, err := ParseClient([]byte(`{"type":"command_response","interaction_id":"i1","content":"Pong!","ephemeral":true}`))
	require.NoError(t, err)

	resp, ok := ev.(*CommandResponse)
	require.True(t, ok)
	assert.Equal(t, "i1", resp.InteractionID)
	assert.Equal(t, "Pong!", resp.Content)
	assert.True(t, resp.Ephemeral)
}

func TestParseClient_UnknownType(t *testing.T) {
	_, err := ParseClient([]byte(`{"type":"self_destruct"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseClient_MissingType(t *testing.T) {
	_, err := ParseClient([]byte(`{"channel_id":"c1"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseClient_InvalidJSON(t *testing.T) {
	_, err := ParseClient([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestMarshal_CommandInvoked(t *testing.T) {
	data, err := Marshal(&CommandInvoked{
		InteractionID: "i1",
		CommandName:   "ping",
		GuildID:       "g1",
		ChannelID:     "c1",
		UserID:        "u1",
		Options:       map[string]any{"target": "world"},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "command_invoked", decoded["type"])
	assert.Equal(t, "i1", decoded["interaction_id"])
	assert.Equal(t, "ping", decoded["command_name"])
	assert.Equal(t, map[string]any{"target": "world"}, decoded["options"])
}

func TestMarshal_ErrorWithRetryAfter(t *testing.T) {
	data, err := Marshal(&Error{Code: CodeRateLimited, Message: "slow down", RetryAfter: 17})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "error", decoded["type"])
	assert.Equal(t, "rate_limited", decoded["code"])
	assert.Equal(t, float64(17), decoded["retry_after"])
}

func TestMarshal_ErrorOmitsZeroRetryAfter(t *testing.T) {
	data, err := Marshal(&Error{Code: CodeInvalidMessage, Message: "bad frame"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	_, present := decoded["retry_after"]
	assert.False(t, present)
}

func TestValidateContent(t *testing.T) {
	assert.NoError(t, ValidateContent("hello"))
	assert.NoError(t, ValidateContent(strings.Repeat("a", 4000)))
	assert.Error(t, ValidateContent(""))
	assert.Error(t, ValidateContent(strings.Repeat("a", 4001)))
}

func TestValidateContent_CountsRunes(t *testing.T) {
	// 4000 multi-byte runes exceed 4000 bytes but stay within the limit
	assert.NoError(t, ValidateContent(strings.Repeat("é", 4000)))
}

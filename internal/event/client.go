// ABOUTME: Inbound (bot-to-server) gateway events and their JSON decoding
// ABOUTME: ParseClient dispatches on the type discriminator of a raw frame

package event

import (
	"encoding/json"
	"fmt"
)

// Client is an inbound gateway event sent by a connected bot.
type Client interface {
	clientEvent()
}

// MessageCreate asks the platform to post a message as the bot.
type MessageCreate struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// CommandResponse answers a previously delivered command_invoked event.
type CommandResponse struct {
	InteractionID string `json:"interaction_id"`
	Content       string `json:"content"`
	Ephemeral     bool   `json:"ephemeral"`
}

func (*MessageCreate) clientEvent()   {}
func (*CommandResponse) clientEvent() {}

// ParseClient decodes a raw inbound frame. Returns ErrMalformed for
// invalid JSON or a missing discriminator, and ErrUnknownType for a
// discriminator outside the client union.
func ParseClient(data []byte) (Client, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case TypeMessageCreate:
		var ev MessageCreate
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &ev, nil
	case TypeCommandResponse:
		var ev CommandResponse
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &ev, nil
	case "":
		return nil, fmt.Errorf("%w: missing type field", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

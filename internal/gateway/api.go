// ABOUTME: Management API handlers for command registration and invocation
// ABOUTME: JWT-authed REST surface consumed by application owners and the platform

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hearth-chat/bot-gateway/internal/auth"
	"github.com/hearth-chat/bot-gateway/internal/interaction"
	"github.com/hearth-chat/bot-gateway/internal/registry"
	"github.com/hearth-chat/bot-gateway/internal/store"
)

// commandPayload is the JSON shape of one registered command.
type commandPayload struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Options     []store.CommandOption `json:"options,omitempty"`
	GuildID     string                `json:"guild_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// authorizeApplication verifies the application exists and, when auth is
// enabled, that the caller owns it. Returns false after writing the
// error response.
func (g *Gateway) authorizeApplication(w http.ResponseWriter, r *http.Request, applicationID string) bool {
	cred, err := g.store.GetBotCredentialByApplication(r.Context(), applicationID)
	if errors.Is(err, store.ErrCredentialNotFound) {
		writeError(w, http.StatusNotFound, "application not found")
		return false
	}
	if err != nil {
		g.logger.Error("application lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}

	if authCtx := auth.FromContext(r.Context()); authCtx != nil && authCtx.UserID != cred.OwnerUserID {
		writeError(w, http.StatusForbidden, "not the application owner")
		return false
	}
	return true
}

// handleReplaceCommands is the bulk-replace registration endpoint:
// PUT /api/applications/{id}/commands
func (g *Gateway) handleReplaceCommands(w http.ResponseWriter, r *http.Request) {
	applicationID := r.PathValue("id")
	if !g.authorizeApplication(w, r, applicationID) {
		return
	}

	var body struct {
		GuildID  string                `json:"guild_id"`
		Commands []registry.Definition `json:"commands"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	commands, err := g.registry.RegisterBulk(r.Context(), applicationID, body.GuildID, body.Commands)
	if err != nil {
		var vErr *registry.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		g.logger.Error("command registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	payload := make([]commandPayload, len(commands))
	for i, cmd := range commands {
		payload[i] = commandPayload{
			Name:        cmd.Name,
			Description: cmd.Description,
			Options:     cmd.Options,
			GuildID:     cmd.GuildID,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": payload})
}

// handleListAppCommands lists one application's own registrations:
// GET /api/applications/{id}/commands?guild_id=...
func (g *Gateway) handleListAppCommands(w http.ResponseWriter, r *http.Request) {
	applicationID := r.PathValue("id")
	if !g.authorizeApplication(w, r, applicationID) {
		return
	}

	commands, err := g.registry.ListForApplication(r.Context(), applicationID, r.URL.Query().Get("guild_id"))
	if err != nil {
		g.logger.Error("command listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	payload := make([]commandPayload, len(commands))
	for i, cmd := range commands {
		payload[i] = commandPayload{
			Name:        cmd.Name,
			Description: cmd.Description,
			Options:     cmd.Options,
			GuildID:     cmd.GuildID,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": payload})
}

// handleDeleteCommands bulk-deletes a scope's registrations:
// DELETE /api/applications/{id}/commands?guild_id=...
func (g *Gateway) handleDeleteCommands(w http.ResponseWriter, r *http.Request) {
	applicationID := r.PathValue("id")
	if !g.authorizeApplication(w, r, applicationID) {
		return
	}

	if err := g.registry.DeleteAll(r.Context(), applicationID, r.URL.Query().Get("guild_id")); err != nil {
		g.logger.Error("command deletion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCommands is the administrative listing across providers:
// GET /api/commands?guild_id=...
// Ambiguous names appear once per provider, flagged, never collapsed.
func (g *Gateway) handleListCommands(w http.ResponseWriter, r *http.Request) {
	entries, err := g.registry.List(r.Context(), r.URL.Query().Get("guild_id"))
	if err != nil {
		g.logger.Error("command listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type entryPayload struct {
		Name           string `json:"name"`
		Description    string `json:"description"`
		GuildID        string `json:"guild_id,omitempty"`
		ApplicationID  string `json:"application_id"`
		BotUserID      string `json:"bot_user_id"`
		BotDisplayName string `json:"bot_display_name"`
		IsAmbiguous    bool   `json:"is_ambiguous"`
	}

	payload := make([]entryPayload, len(entries))
	for i, e := range entries {
		payload[i] = entryPayload{
			Name:           e.Command.Name,
			Description:    e.Command.Description,
			GuildID:        e.Command.GuildID,
			ApplicationID:  e.Command.ApplicationID,
			BotUserID:      e.BotUserID,
			BotDisplayName: e.BotDisplayName,
			IsAmbiguous:    e.IsAmbiguous,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": payload})
}

// handleInvoke is the platform's entry point for a user-invoked slash
// command: POST /api/invoke
func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CommandName string   `json:"command_name"`
		GuildID     string   `json:"guild_id"`
		ChannelID   string   `json:"channel_id"`
		UserID      string   `json:"user_id"`
		Args        []string `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	interactionID, err := g.interactions.Create(r.Context(), interaction.CreateRequest{
		CommandName: body.CommandName,
		GuildID:     body.GuildID,
		ChannelID:   body.ChannelID,
		UserID:      body.UserID,
		Args:        body.Args,
	})
	if err != nil {
		var ambiguous *interaction.AmbiguousCommandError
		switch {
		case errors.Is(err, interaction.ErrCommandNotFound):
			writeError(w, http.StatusNotFound, "command not found")
		case errors.As(err, &ambiguous):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":            "ambiguous command",
				"command_name":     ambiguous.Name,
				"conflicting_bots": ambiguous.Bots,
			})
		case errors.Is(err, interaction.ErrInvalidArguments):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			g.logger.Error("interaction creation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"interaction_id": interactionID})
}

// handleGetResponse serves the delivery path's TTL-bound retrieval:
// GET /api/interactions/{id}/response
func (g *Gateway) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	inter, err := g.interactions.GetResponse(r.Context(), r.PathValue("id"))
	if errors.Is(err, interaction.ErrResponseNotAvailable) {
		writeError(w, http.StatusNotFound, "response not available")
		return
	}
	if err != nil {
		g.logger.Error("response retrieval failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"interaction_id": inter.ID,
		"command_name":   inter.CommandName,
		"content":        inter.ResponseContent,
		"ephemeral":      inter.ResponseEphemeral,
	})
}

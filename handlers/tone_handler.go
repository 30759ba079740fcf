package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tonoapp/tono-server/credits"
	"github.com/tonoapp/tono-server/models"
	"github.com/tonoapp/tono-server/oracle"
	"github.com/tonoapp/tono-server/tonecache"
	"github.com/tonoapp/tono-server/utils"
)

const exhaustedMessage = "You're out of generations for this month. Upgrade your plan for more."

// SettingsOracle is what the tone handler needs from the AI side.
type SettingsOracle interface {
	GenerateSettings(ctx context.Context, req oracle.Request) (oracle.Result, error)
}

type ToneHandler struct {
	DB     *sql.DB
	Ledger *credits.Ledger
	Cache  *tonecache.Cache
	Oracle SettingsOracle
	Logger *zap.Logger
}

func (h *ToneHandler) CreateTone(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	var req models.CreateToneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		utils.RespondValidationError(w, "Missing required fields", []string{"name"})
		return
	}

	// Reserve before the oracle call so a user is never charged for a
	// call that was never attempted.
	if err := h.Ledger.TryReserve(r.Context(), user.UUID); err != nil {
		if errors.Is(err, credits.ErrExhausted) {
			utils.RespondErrorCode(w, http.StatusForbidden, utils.ErrCodeCreditsExhausted, exhaustedMessage)
			return
		}
		utils.RespondInternal(w, err, "Failed to reserve generation credit")
		return
	}

	tone := models.Tone{
		UserUUID:    user.UUID,
		Name:        req.Name,
		Artist:      req.Artist,
		Description: req.Description,
		Guitar:      req.Guitar,
		Pickups:     req.Pickups,
		Strings:     req.Strings,
		Amp:         req.Amp,
	}
	tone.Settings, tone.Notes = h.resolveSettings(r.Context(), tone, false)

	err := h.DB.QueryRowContext(r.Context(), `
		INSERT INTO tones (user_uuid, name, artist, description, guitar, pickups, strings, amp, settings, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING uuid, created_at, updated_at
	`, tone.UserUUID, tone.Name, tone.Artist, tone.Description, tone.Guitar,
		tone.Pickups, tone.Strings, tone.Amp, tone.Settings, tone.Notes,
	).Scan(&tone.UUID, &tone.CreatedAt, &tone.UpdatedAt)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to save tone")
		return
	}

	utils.RespondSuccess(w, http.StatusCreated, tone)
}

func (h *ToneHandler) ListTones(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT uuid, user_uuid, name, artist, description, guitar, pickups, strings, amp, settings, notes, created_at, updated_at
		FROM tones
		WHERE user_uuid = $1
		ORDER BY created_at DESC
	`, user.UUID)
	if err != nil {
		utils.RespondInternal(w, err, "Failed to list tones")
		return
	}
	defer rows.Close()

	tones := []models.Tone{}
	for rows.Next() {
		var t models.Tone
		if err := rows.Scan(&t.UUID, &t.UserUUID, &t.Name, &t.Artist, &t.Description,
			&t.Guitar, &t.Pickups, &t.Strings, &t.Amp, &t.Settings, &t.Notes,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			utils.RespondInternal(w, err, "Failed to read tone")
			return
		}
		tones = append(tones, t)
	}
	if err := rows.Err(); err != nil {
		utils.RespondInternal(w, err, "Failed to list tones")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, tones)
}

func (h *ToneHandler) GetTone(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	tone, ok := h.loadOwnedTone(w, r, user.UUID)
	if !ok {
		return
	}

	utils.RespondSuccess(w, http.StatusOK, tone)
}

func (h *ToneHandler) UpdateTone(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	tone, ok := h.loadOwnedTone(w, r, user.UUID)
	if !ok {
		return
	}

	var req models.UpdateToneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// A name-only edit is free; any gear-relevant change costs one
	// credit and triggers exactly one new recommendation.
	regenerate := gearChanged(tone, req)
	applyPatch(&tone, req)

	if regenerate {
		if err := h.Ledger.TryReserve(r.Context(), user.UUID); err != nil {
			if errors.Is(err, credits.ErrExhausted) {
				utils.RespondErrorCode(w, http.StatusForbidden, utils.ErrCodeCreditsExhausted, exhaustedMessage)
				return
			}
			utils.RespondInternal(w, err, "Failed to reserve generation credit")
			return
		}
		tone.Settings, tone.Notes = h.resolveSettings(r.Context(), tone, false)
	}

	err := h.DB.QueryRowContext(r.Context(), `
		UPDATE tones
		SET name = $1, artist = $2, description = $3, guitar = $4, pickups = $5,
		    strings = $6, amp = $7, settings = $8, notes = $9, updated_at = now()
		WHERE uuid = $10 AND user_uuid = $11
		RETURNING updated_at
	`, tone.Name, tone.Artist, tone.Description, tone.Guitar, tone.Pickups,
		tone.Strings, tone.Amp, tone.Settings, tone.Notes, tone.UUID, user.UUID,
	).Scan(&tone.UpdatedAt)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to update tone")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, tone)
}

func (h *ToneHandler) DeleteTone(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	toneID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid tone id")
		return
	}

	res, err := h.DB.ExecContext(r.Context(), `
		DELETE FROM tones WHERE uuid = $1 AND user_uuid = $2
	`, toneID, user.UUID)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to delete tone")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.RespondError(w, http.StatusNotFound, "Tone not found")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RegenerateTone forces a fresh oracle answer for the tone's current
// gear: invalidate, then generate bypassing the cache. The two steps are
// not atomic; a concurrent request may repopulate the entry in between.
func (h *ToneHandler) RegenerateTone(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.DB)
	if !ok {
		return
	}

	tone, ok := h.loadOwnedTone(w, r, user.UUID)
	if !ok {
		return
	}

	if err := h.Ledger.TryReserve(r.Context(), user.UUID); err != nil {
		if errors.Is(err, credits.ErrExhausted) {
			utils.RespondErrorCode(w, http.StatusForbidden, utils.ErrCodeCreditsExhausted, exhaustedMessage)
			return
		}
		utils.RespondInternal(w, err, "Failed to reserve generation credit")
		return
	}

	h.Cache.Invalidate(r.Context(), gearConfig(tone))
	tone.Settings, tone.Notes = h.resolveSettings(r.Context(), tone, true)

	err := h.DB.QueryRowContext(r.Context(), `
		UPDATE tones SET settings = $1, notes = $2, updated_at = now()
		WHERE uuid = $3 AND user_uuid = $4
		RETURNING updated_at
	`, tone.Settings, tone.Notes, tone.UUID, user.UUID).Scan(&tone.UpdatedAt)
	if err != nil {
		utils.RespondInternal(w, err, "Unable to update tone")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, tone)
}

func (h *ToneHandler) loadOwnedTone(w http.ResponseWriter, r *http.Request, userUUID uuid.UUID) (models.Tone, bool) {
	toneID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid tone id")
		return models.Tone{}, false
	}

	var t models.Tone
	err = h.DB.QueryRowContext(r.Context(), `
		SELECT uuid, user_uuid, name, artist, description, guitar, pickups, strings, amp, settings, notes, created_at, updated_at
		FROM tones
		WHERE uuid = $1 AND user_uuid = $2
	`, toneID, userUUID).Scan(&t.UUID, &t.UserUUID, &t.Name, &t.Artist, &t.Description,
		&t.Guitar, &t.Pickups, &t.Strings, &t.Amp, &t.Settings, &t.Notes,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		utils.RespondError(w, http.StatusNotFound, "Tone not found")
		return models.Tone{}, false
	}
	if err != nil {
		utils.RespondInternal(w, err, "Failed to load tone")
		return models.Tone{}, false
	}

	return t, true
}

// resolveSettings produces the settings for a tone's current gear:
// cache first unless bypassed, then the oracle, then the neutral
// fallback. It never fails the request; a degraded oracle yields a
// usable default and the fallback is not cached.
func (h *ToneHandler) resolveSettings(ctx context.Context, tone models.Tone, bypassCache bool) (models.AmpSettings, string) {
	cfg := gearConfig(tone)

	if !bypassCache {
		if entry, ok := h.Cache.Get(ctx, cfg); ok {
			return entry.Settings, entry.Notes
		}
	}

	result, err := h.Oracle.GenerateSettings(ctx, oracle.Request{
		Artist:      tone.Artist,
		Description: tone.Description,
		Guitar:      tone.Guitar,
		Pickups:     tone.Pickups,
		Strings:     tone.Strings,
		Amp:         tone.Amp,
	})
	if err != nil {
		h.Logger.Warn("oracle degraded, using default settings",
			zap.String("tone", tone.Name), zap.Error(err))
		def := oracle.DefaultSettings()
		return def.Settings, def.Notes
	}

	h.Cache.Set(ctx, cfg, tonecache.Entry{Settings: result.Settings, Notes: result.Notes})
	return result.Settings, result.Notes
}

func gearConfig(tone models.Tone) tonecache.GearConfig {
	return tonecache.GearConfig{
		Artist:      tone.Artist,
		Description: tone.Description,
		Guitar:      tone.Guitar,
		Pickups:     tone.Pickups,
		Strings:     tone.Strings,
		Amp:         tone.Amp,
	}
}

// gearChanged reports whether the patch touches a gear-relevant field:
// artist, description, guitar, pickups, strings or amp. Name is not
// gear-relevant.
func gearChanged(tone models.Tone, req models.UpdateToneRequest) bool {
	changed := func(current string, patch *string) bool {
		return patch != nil && *patch != current
	}
	return changed(tone.Artist, req.Artist) ||
		changed(tone.Description, req.Description) ||
		changed(tone.Guitar, req.Guitar) ||
		changed(tone.Pickups, req.Pickups) ||
		changed(tone.Strings, req.Strings) ||
		changed(tone.Amp, req.Amp)
}

func applyPatch(tone *models.Tone, req models.UpdateToneRequest) {
	if req.Name != nil {
		tone.Name = *req.Name
	}
	if req.Artist != nil {
		tone.Artist = *req.Artist
	}
	if req.Description != nil {
		tone.Description = *req.Description
	}
	if req.Guitar != nil {
		tone.Guitar = *req.Guitar
	}
	if req.Pickups != nil {
		tone.Pickups = *req.Pickups
	}
	if req.Strings != nil {
		tone.Strings = *req.Strings
	}
	if req.Amp != nil {
		tone.Amp = *req.Amp
	}
}

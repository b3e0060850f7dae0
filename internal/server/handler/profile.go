package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// ProfileService defines the methods the profile handler requires from the
// ledger service.
type ProfileService interface {
	ListProfiles(ctx context.Context) ([]domain.Profile, string, error)
	CreateProfile(ctx context.Context, name string, initialBalance *float64, settings *domain.SettingsPatch) (domain.Profile, error)
	UpdateProfile(ctx context.Context, profileID string, upd domain.ProfileUpdate) (domain.Profile, error)
	DeleteProfile(ctx context.Context, profileID string) error
}

// ProfileHandler serves profile management endpoints.
type ProfileHandler struct {
	profiles ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler with the given service and logger.
func NewProfileHandler(profiles ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger,
	}
}

// List returns all profiles and the active profile's ID.
// GET /api/profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, activeID, err := h.profiles.ListProfiles(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"profiles":        profiles,
		"activeProfileId": activeID,
		"count":           len(profiles),
	})
}

type createProfileRequest struct {
	Name           string                `json:"name"`
	InitialBalance *float64              `json:"initialBalance"`
	Settings       *domain.SettingsPatch `json:"settings"`
}

// Create creates a new profile and makes it active.
// POST /api/profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error())
		return
	}

	p, err := h.profiles.CreateProfile(r.Context(), req.Name, req.InitialBalance, req.Settings)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"profile": p,
	})
}

type updateProfileRequest struct {
	ProfileID string `json:"profileId"`
	domain.ProfileUpdate
}

// Update applies one profile mutation (SWITCH, RENAME, UPDATE_SETTINGS,
// UPDATE_BALANCE or RESET).
// PATCH /api/profiles
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error())
		return
	}
	if req.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "profileId is required")
		return
	}

	p, err := h.profiles.UpdateProfile(r.Context(), req.ProfileID, req.ProfileUpdate)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"profile": p,
	})
}

// Delete removes a profile by ID. Deleting the last profile is refused.
// DELETE /api/profiles?profileId=...
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profileID := r.URL.Query().Get("profileId")
	if profileID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "profileId query parameter required")
		return
	}

	if err := h.profiles.DeleteProfile(r.Context(), profileID); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"profileId": profileID,
	})
}

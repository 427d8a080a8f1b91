package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"account-service/internal/errs"
	"account-service/internal/service"
)

// UserHandler handles HTTP requests for profile CRUD.
type UserHandler struct {
	profileService *service.ProfileService
	logger         *zap.Logger
}

func NewUserHandler(profileService *service.ProfileService, logger *zap.Logger) *UserHandler {
	return &UserHandler{profileService: profileService, logger: logger}
}

// RegisterRoutes registers the user routes.
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.ListUsers)
		r.Get("/{userID}", h.GetUser)
		r.Put("/{userID}", h.UpdateUser)
		r.Delete("/{userID}", h.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{}
	query := r.URL.Query()
	for _, field := range []string{"email", "surname", "credentialId"} {
		if value := query.Get(field); value != "" {
			params[field] = value
		}
	}

	profiles, err := h.profileService.List(r.Context(), params)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "success", profiles)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "success", profile)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	req := &service.UpdateRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondError(w, errs.New(errs.KindValidation, "Invalid request body"))
		return
	}

	profile, err := h.profileService.Update(r.Context(), chi.URLParam(r, "userID"), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "User updated", profile)
	h.logger.Info("profile updated", zap.String("profile_id", profile.ProfileID))
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profileService.Delete(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "User deleted", profile)
	h.logger.Info("profile deleted", zap.String("profile_id", profile.ProfileID))
}

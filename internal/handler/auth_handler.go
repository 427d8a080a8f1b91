package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"account-service/internal/errs"
	"account-service/internal/service"
	"account-service/internal/token"
	"account-service/internal/util"
)

// AuthHandler handles HTTP requests for registration and sessions.
type AuthHandler struct {
	authService *service.AuthService
	tokens      *token.Service
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, tokens *token.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, tokens: tokens, logger: logger}
}

// RegisterRoutes registers the auth routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthGuard(h.tokens))
			r.Post("/current-user", h.CurrentUser)
			r.Get("/logout", h.Logout)
		})
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := &service.RegisterRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondError(w, errs.New(errs.KindValidation, "Invalid request body"))
		return
	}

	summary, err := h.authService.Register(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, "Signup Successful", summary)
	h.logger.Info("user registered",
		zap.String("credential_id", summary.ID),
		zap.Duration("duration", time.Since(start)))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req := loginRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errs.New(errs.KindValidation, "Invalid request body"))
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}

	respondSuccess(w, "Login Successful", result)
	h.logger.Info("user logged in",
		zap.String("profile_id", result.UserData.ProfileID),
		zap.Duration("duration", time.Since(start)))
}

func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.authService.CurrentUser(r.Context(), AuthID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "success", profile)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ack, err := h.authService.Logout(r.Context(), AuthID(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "Logout Successful", ack)
	util.Debug("user logged out", zap.String("credential_id", ack.AuthID))
}

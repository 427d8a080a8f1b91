package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"account-service/internal/errs"
	"account-service/internal/token"
)

type contextKey string

const (
	ctxKeyAuthID    contextKey = "authID"
	ctxKeyProfileID contextKey = "profileID"
	ctxKeyEmail     contextKey = "email"
)

// authorizationPayload is the JSON object clients place in the Authorization
// header. The JSON-in-header wire contract is a legacy client expectation and
// is kept as is.
type authorizationPayload struct {
	AccessToken string `json:"accessToken"`
}

// AuthGuard validates the access token on protected routes and exposes the
// resolved identity through the request context. It trusts embedded claims;
// no store lookup happens here.
func AuthGuard(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				respondError(w, errs.New(errs.KindMissingToken, "Authorization header is required"))
				return
			}
			header = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

			payload := authorizationPayload{}
			if err := json.Unmarshal([]byte(header), &payload); err != nil || payload.AccessToken == "" {
				respondError(w, errs.New(errs.KindMalformedToken, "Authorization header is malformed"))
				return
			}

			claims, err := tokens.Validate(payload.AccessToken)
			if err != nil {
				respondError(w, err)
				return
			}
			if err := tokens.ValidateShape(claims); err != nil {
				respondError(w, err)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxKeyAuthID, claims.Subject)
			if userID, ok := claims.Ext["userId"].(string); ok {
				ctx = context.WithValue(ctx, ctxKeyProfileID, userID)
			}
			if email, ok := claims.Ext["email"].(string); ok {
				ctx = context.WithValue(ctx, ctxKeyEmail, email)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthID returns the authenticated credential id, empty outside guarded
// routes.
func AuthID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyAuthID).(string)
	return id
}

// ProfileID returns the profile id embedded in the validated token.
func ProfileID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyProfileID).(string)
	return id
}

// Email returns the email embedded in the validated token.
func Email(ctx context.Context) string {
	email, _ := ctx.Value(ctxKeyEmail).(string)
	return email
}

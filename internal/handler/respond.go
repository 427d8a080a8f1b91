package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"account-service/internal/errs"
	"account-service/internal/util"
)

// StatusCode is the coarse client-facing discriminator carried in every
// envelope, distinct from the HTTP status. Clients branch on it; in
// particular codeInvalidAccessToken tells them to attempt a token refresh.
type StatusCode string

const (
	codeSuccess            StatusCode = "10000"
	codeFailure            StatusCode = "10001"
	codeForbidden          StatusCode = "10002"
	codeRetry              StatusCode = "10003"
	codeInvalidAccessToken StatusCode = "10005"
)

// instructionHeader accompanies expired-access-token responses.
const (
	instructionHeader  = "instruction"
	instructionRefresh = "refresh_token"
)

// Envelope is the uniform response body for every route, success or failure.
type Envelope struct {
	StatusCode StatusCode  `json:"statusCode"`
	Message    string      `json:"message"`
	Content    interface{} `json:"content,omitempty"`
}

func respondJSON(w http.ResponseWriter, httpStatus int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		util.Error("failed to encode response", zap.Error(err))
	}
}

func respondSuccess(w http.ResponseWriter, message string, content interface{}) {
	respondJSON(w, http.StatusOK, Envelope{
		StatusCode: codeSuccess,
		Message:    message,
		Content:    content,
	})
}

// mapKind is the single pure mapping from error kind to wire shape.
func mapKind(kind errs.Kind) (httpStatus int, code StatusCode) {
	switch kind {
	case errs.KindValidation, errs.KindDuplicateAccount:
		return http.StatusBadRequest, codeFailure
	case errs.KindInvalidCredentials, errs.KindMissingToken,
		errs.KindMalformedToken, errs.KindInvalidToken, errs.KindAuthFailure:
		return http.StatusUnauthorized, codeFailure
	case errs.KindExpiredToken:
		return http.StatusUnauthorized, codeInvalidAccessToken
	case errs.KindNotFound:
		return http.StatusNotFound, codeFailure
	default:
		return http.StatusInternalServerError, codeFailure
	}
}

func respondError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	httpStatus, code := mapKind(kind)

	if kind == errs.KindInternal {
		util.Error("request failed", zap.Error(err))
	}
	if code == codeInvalidAccessToken {
		w.Header().Set(instructionHeader, instructionRefresh)
	}

	respondJSON(w, httpStatus, Envelope{
		StatusCode: code,
		Message:    errs.MessageOf(err),
	})
}

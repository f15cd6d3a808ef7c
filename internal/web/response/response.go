package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/sahan/go-idp/internal/errors"
)

// OAuthError is the RFC 6749 error envelope returned by the protocol
// endpoints.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func Redirect(w http.ResponseWriter, status int, url string) {
	w.Header().Set("Location", url)
	w.WriteHeader(status)
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// Decode reads a JSON body into T.
func Decode[T any](r io.Reader) (T, error) {
	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// Error writes err as an OAuth error envelope. Internal errors are logged
// with their cause but surfaced to the caller as an opaque server_error.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	var appErr *apperrors.AppError

	if !errors.As(err, &appErr) {
		if logger != nil {
			logger.Error("unclassified error", slog.String("error", err.Error()))
		}
		appErr = apperrors.ServerError("something went wrong, please try again", err)
	} else if logger != nil && appErr.HTTPCode >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("code", appErr.Code),
			slog.String("error", appErr.Error()))
	} else if logger != nil {
		logger.Warn("request rejected",
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Message))
	}

	message := appErr.Message
	if appErr.HTTPCode >= http.StatusInternalServerError {
		message = "something went wrong, please try again"
	}

	if appErr.Code == apperrors.CodeInvalidToken {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	JSON(w, appErr.HTTPCode, OAuthError{
		Error:            translateCode(appErr.Code),
		ErrorDescription: message,
	})
}

// translateCode maps internal error codes onto the wire vocabulary.
// Protocol codes pass through unchanged.
func translateCode(code string) string {
	switch code {
	case apperrors.CodeInternalError, apperrors.CodeConfigError,
		apperrors.CodeKeyFormat, apperrors.CodeStoreError:
		return apperrors.CodeServerError
	case apperrors.CodeRateLimited:
		return "slow_down"
	default:
		return code
	}
}

package oauth

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/sahan/go-idp/internal/errors"
	"github.com/sahan/go-idp/internal/web/middleware"
	"github.com/sahan/go-idp/internal/web/response"
)

// see https://openid.net/specs/openid-connect-core-1_0.html
func AuthorizeHandler(service *Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		query := r.URL.Query()

		// The authenticated citizen rides on a session bearer token
		// established by the login front end.
		subjectID, err := service.Session(r.Context(), middleware.BearerToken(r))
		if err != nil && !apperrors.IsType(err, apperrors.CodeLoginRequired) {
			response.Error(w, err, logger)
			return
		}

		result, err := service.Authorize(r.Context(), AuthorizeRequest{
			ResponseType:        query.Get("response_type"),
			ClientID:            query.Get("client_id"),
			RedirectURI:         query.Get("redirect_uri"),
			Scope:               query.Get("scope"),
			State:               query.Get("state"),
			Nonce:               query.Get("nonce"),
			CodeChallenge:       query.Get("code_challenge"),
			CodeChallengeMethod: query.Get("code_challenge_method"),
			SubjectID:           subjectID,
		})
		if err != nil {
			response.Error(w, err, logger)
			return
		}

		location, err := url.Parse(result.RedirectURI)
		if err != nil {
			response.Error(w, apperrors.ServerError("redirect uri is not parseable", err), logger)
			return
		}

		redirectQuery := location.Query()
		redirectQuery.Set("code", result.Code)
		if result.State != "" {
			redirectQuery.Set("state", result.State)
		}
		location.RawQuery = redirectQuery.Encode()

		response.Redirect(w, http.StatusFound, location.String())
	})
}

// see https://datatracker.ietf.org/doc/html/rfc6749#section-3.2
func TokenHandler(service *Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		req, err := decodeTokenRequest(r)
		if err != nil {
			response.Error(w, err, logger)
			return
		}

		tokenResponse, err := service.Exchange(r.Context(), req)
		if err != nil {
			response.Error(w, err, logger)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		response.JSON(w, http.StatusOK, tokenResponse)
	})
}

// decodeTokenRequest accepts form-encoded and JSON bodies. Credentials in
// an Authorization Basic header (client_secret_basic) take precedence over
// body parameters.
func decodeTokenRequest(r *http.Request) (TokenRequest, error) {
	var req TokenRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		body, err := response.Decode[struct {
			GrantType           string `json:"grant_type"`
			Code                string `json:"code"`
			ClientID            string `json:"client_id"`
			RedirectURI         string `json:"redirect_uri"`
			CodeVerifier        string `json:"code_verifier"`
			ClientSecret        string `json:"client_secret"`
			ClientAssertion     string `json:"client_assertion"`
			ClientAssertionType string `json:"client_assertion_type"`
		}](r.Body)
		if err != nil {
			return req, apperrors.InvalidRequestError("request body is not valid json", err)
		}

		req = TokenRequest{
			GrantType:           body.GrantType,
			Code:                body.Code,
			ClientID:            body.ClientID,
			RedirectURI:         body.RedirectURI,
			CodeVerifier:        body.CodeVerifier,
			ClientSecret:        body.ClientSecret,
			ClientAssertion:     body.ClientAssertion,
			ClientAssertionType: body.ClientAssertionType,
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, apperrors.InvalidRequestError("request body is not valid form data", err)
		}

		req = TokenRequest{
			GrantType:           r.PostForm.Get("grant_type"),
			Code:                r.PostForm.Get("code"),
			ClientID:            r.PostForm.Get("client_id"),
			RedirectURI:         r.PostForm.Get("redirect_uri"),
			CodeVerifier:        r.PostForm.Get("code_verifier"),
			ClientSecret:        r.PostForm.Get("client_secret"),
			ClientAssertion:     r.PostForm.Get("client_assertion"),
			ClientAssertionType: r.PostForm.Get("client_assertion_type"),
		}
	}

	if username, password, ok := r.BasicAuth(); ok {
		clientID, err := url.QueryUnescape(username)
		if err != nil {
			return req, apperrors.InvalidRequestError("client_id in authorization header is malformed", err)
		}
		clientSecret, err := url.QueryUnescape(password)
		if err != nil {
			return req, apperrors.InvalidRequestError("client_secret in authorization header is malformed", err)
		}
		req.ClientID = clientID
		req.ClientSecret = clientSecret
	}

	return req, nil
}

// see https://openid.net/specs/openid-connect-core-1_0.html#UserInfo
func UserinfoHandler(service *Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		claims, err := service.Userinfo(r.Context(), middleware.BearerToken(r))
		if err != nil {
			response.Error(w, err, logger)
			return
		}

		response.JSON(w, http.StatusOK, claims)
	})
}

// see https://datatracker.ietf.org/doc/html/rfc7009
func RevokeHandler(service *Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseForm(); err != nil {
			response.Error(w, apperrors.InvalidRequestError("request body is not valid form data", err), logger)
			return
		}

		if err := service.Revoke(r.Context(), r.PostForm.Get("token")); err != nil {
			response.Error(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/middleware"
	requestutil "github.com/taibuivan/yomira-auth/internal/platform/request"
	"github.com/taibuivan/yomira-auth/internal/platform/respond"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/internal/platform/validate"
)

// # Definitions & Constructors

// Handler exposes the lifecycle flows over HTTP.
//
// # Scope
//
// Transport only: decoding, validation, status codes and the refresh cookie.
// Every decision is taken by [Service].
type Handler struct {
	authService   *Service
	secureCookies bool
}

// NewHandler constructs a [Handler]. secureCookies sets the Secure attribute
// on the refresh cookie and should be on everywhere except local development.
func NewHandler(service *Service, secureCookies bool) *Handler {
	return &Handler{authService: service, secureCookies: secureCookies}
}

// Routes returns the authentication routes, mounted under /api/v1/auth.
//
// # Endpoints
//   - POST /login           : Credential login.
//   - POST /admin/setup     : Admin first-time setup.
//   - POST /activate        : User activation with a one-time password.
//   - POST /refresh         : Refresh-token rotation.
//   - POST /logout          : Session revocation.
//   - POST /password/forgot : Sends a reset code.
//   - POST /password/verify : Exchanges a reset code for a reset token.
//   - POST /password/reset  : Sets a new password.
//   - GET  /me              : Current identity (authenticated).
//   - POST /users           : Provisions a user (admin).
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/login", handler.login)
	router.Post("/admin/setup", handler.setupAdmin)
	router.Post("/activate", handler.activate)
	router.Post("/refresh", handler.refresh)
	router.Post("/logout", handler.logout)
	router.Post("/password/forgot", handler.forgotPassword)
	router.Post("/password/verify", handler.verifyPasswordReset)
	router.Post("/password/reset", handler.resetPassword)

	// Protected endpoints
	router.With(middleware.RequireAuth).Get("/me", handler.me)
	router.With(middleware.RequireRole(sec.RoleAdmin)).Post("/users", handler.provisionUser)

	return router
}

// # Request Payloads

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type setupAdminRequest struct {
	Username        string `json:"username"`
	CurrentPassword string `json:"current_password"`
	NewEmail        string `json:"new_email"`
	NewPassword     string `json:"new_password"`
}

type activateRequest struct {
	Username          string `json:"username"`
	TemporaryPassword string `json:"temporary_password"`
	OtpCode           string `json:"otp_code"`
	NewPassword       string `json:"new_password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type verifyResetRequest struct {
	Email   string `json:"email"`
	OtpCode string `json:"otp_code"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

type provisionUserRequest struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	TemporaryPassword string `json:"temporary_password"`
}

// # Response Payloads

type sessionResponse struct {
	Status       LoginStatus `json:"status"`
	AccessToken  string      `json:"access_token,omitempty"`
	TokenType    string      `json:"token_type,omitempty"`
	ExpiresIn    int64       `json:"expires_in,omitempty"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	Identity     *Identity   `json:"identity,omitempty"`
}

type resetGrantResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int64  `json:"expires_in"`
}

/*
Login authenticates an identity and reports the next lifecycle step.

POST /api/v1/auth/login

Request:
  - Body: loginRequest (Identifier, Password)

Response:
  - 200: sessionResponse: SUCCESS with tokens, or a *_REQUIRED status without
  - 401: INVALID_CREDENTIALS
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		MaxLen(FieldIdentifier, input.Identifier, 254).
		Required(FieldPassword, input.Password).
		MaxLen(FieldPassword, input.Password, validate.PasswordMaxLen)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.authService.Login(request.Context(), input.Identifier, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeOutcome(writer, outcome)
}

/*
SetupAdmin completes first-time setup of the bootstrap admin.

POST /api/v1/auth/admin/setup

Request:
  - Body: setupAdminRequest (Username, CurrentPassword, NewEmail, NewPassword)

Response:
  - 200: sessionResponse: SUCCESS with tokens
  - 400: VALIDATION_ERROR
  - 401: INVALID_CREDENTIALS
  - 404: NOT_FOUND
  - 409: ALREADY_COMPLETED or CONFLICT (email taken)
*/
func (handler *Handler) setupAdmin(writer http.ResponseWriter, request *http.Request) {
	var input setupAdminRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewEmail, input.NewEmail).
		Email(FieldNewEmail, input.NewEmail).
		StrongPassword(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.authService.SetupAdmin(request.Context(), SetupAdminInput{
		Username:        input.Username,
		CurrentPassword: input.CurrentPassword,
		NewEmail:        input.NewEmail,
		NewPassword:     input.NewPassword,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeOutcome(writer, outcome)
}

/*
Activate completes the first login of a provisioned user.

POST /api/v1/auth/activate

Request:
  - Body: activateRequest (Username, TemporaryPassword, OtpCode, NewPassword)

Response:
  - 200: sessionResponse: SUCCESS with tokens
  - 400: VALIDATION_ERROR or OTP_INVALID
  - 401: INVALID_CREDENTIALS
  - 404: NOT_FOUND
  - 409: ALREADY_COMPLETED
  - 423: OTP_LOCKED
*/
func (handler *Handler) activate(writer http.ResponseWriter, request *http.Request) {
	var input activateRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		Required(FieldTemporaryPassword, input.TemporaryPassword).
		Digits(FieldOtpCode, input.OtpCode, 6).
		StrongPassword(FieldNewPassword, input.NewPassword).
		Custom(FieldNewPassword, input.NewPassword == input.TemporaryPassword, "Must differ from the temporary password")

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.authService.Activate(request.Context(), ActivateInput{
		Username:          input.Username,
		TemporaryPassword: input.TemporaryPassword,
		OtpCode:           input.OtpCode,
		NewPassword:       input.NewPassword,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.writeOutcome(writer, outcome)
}

/*
Refresh rotates the presented refresh token.

POST /api/v1/auth/refresh

Description: The token is read from the refresh cookie, falling back to the
JSON body for clients that do not keep cookies.

Response:
  - 200: sessionResponse: SUCCESS with the new pair
  - 401: NOT_FOUND or TOKEN_EXPIRED
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	token, err := handler.refreshToken(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	tokens, err := handler.authService.Refresh(request.Context(), token)
	if err != nil {
		handler.clearRefreshCookie(writer)
		respond.Error(writer, request, err)
		return
	}

	handler.writeOutcome(writer, &LoginOutcome{Status: LoginSuccess, Tokens: tokens})
}

/*
Logout revokes the presented refresh token and clears the cookie.

POST /api/v1/auth/logout

Response:
  - 204: No Content (also for unknown or missing tokens)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	token, err := handler.refreshToken(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.Logout(request.Context(), token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
ForgotPassword sends a reset code when the email belongs to an active identity.

POST /api/v1/auth/password/forgot

Response:
  - 202: Accepted (always, to avoid revealing registered addresses)
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RequestPasswordReset(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusAccepted, respond.SuccessEnvelope{
		Data: map[string]string{constants.FieldMessage: "If the address is registered, a code has been sent"},
	})
}

/*
VerifyPasswordReset exchanges a reset code for a reset token.

POST /api/v1/auth/password/verify

Response:
  - 200: resetGrantResponse
  - 400: OTP_INVALID
  - 423: OTP_LOCKED
*/
func (handler *Handler) verifyPasswordReset(writer http.ResponseWriter, request *http.Request) {
	var input verifyResetRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Digits(FieldOtpCode, input.OtpCode, 6)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	grant, err := handler.authService.VerifyPasswordReset(request.Context(), input.Email, input.OtpCode)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, resetGrantResponse{
		ResetToken: grant.Token,
		ExpiresIn:  int64(constants.PasswordResetTTL.Seconds()),
	})
}

/*
ResetPassword sets a new password and revokes every session of the identity.

POST /api/v1/auth/password/reset

Response:
  - 204: No Content
  - 400: VALIDATION_ERROR
  - 401: TOKEN_EXPIRED, TOKEN_MALFORMED or TOKEN_INVALID_SIGNATURE
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldResetToken, input.ResetToken).
		StrongPassword(FieldNewPassword, input.NewPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.ResetToken, input.NewPassword); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearRefreshCookie(writer)
	respond.NoContent(writer)
}

/*
Me returns the identity behind the bearer token.

GET /api/v1/auth/me

Response:
  - 200: Identity
  - 401: UNAUTHORIZED
*/
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	identity, err := handler.authService.Me(request.Context(), claims.IdentityID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, identity)
}

/*
ProvisionUser creates a user pending activation.

POST /api/v1/auth/users

Response:
  - 201: Identity
  - 400: VALIDATION_ERROR
  - 403: FORBIDDEN
  - 409: CONFLICT
*/
func (handler *Handler) provisionUser(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input provisionUserRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		Username(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, 3).
		MaxLen(FieldUsername, input.Username, 64).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		StrongPassword(FieldTemporaryPassword, input.TemporaryPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	identity, err := handler.authService.ProvisionUser(request.Context(), claims, ProvisionInput{
		Username:          input.Username,
		Email:             input.Email,
		TemporaryPassword: input.TemporaryPassword,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, identity)
}

// # Helpers

// refreshToken reads the refresh token from the cookie or, failing that, the body.
func (handler *Handler) refreshToken(request *http.Request) (string, error) {
	if token := requestutil.Cookie(request, constants.RefreshTokenCookieName); token != "" {
		return token, nil
	}

	var input refreshRequest
	if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
		return "", err
	}
	return input.RefreshToken, nil
}

func (handler *Handler) writeOutcome(writer http.ResponseWriter, outcome *LoginOutcome) {
	response := sessionResponse{Status: outcome.Status, Identity: outcome.Identity}

	if tokens := outcome.Tokens; tokens != nil {
		response.AccessToken = tokens.AccessToken
		response.TokenType = "Bearer"
		response.ExpiresIn = int64(handler.authService.AccessTokenTTL().Seconds())
		response.RefreshToken = tokens.RefreshToken

		http.SetCookie(writer, &http.Cookie{
			Name:     constants.RefreshTokenCookieName,
			Value:    tokens.RefreshToken,
			Path:     constants.RefreshTokenCookiePath,
			Expires:  tokens.RefreshTokenExpiresAt,
			Secure:   handler.secureCookies,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}

	respond.OK(writer, response)
}

func (handler *Handler) clearRefreshCookie(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   handler.secureCookies,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

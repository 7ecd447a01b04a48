// Package httpapi exposes the identity services over JSON HTTP with cookie
// sessions.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/services"
	"github.com/dmitrijs2005/sitekeeper/internal/server/session"
	"github.com/go-playground/validator/v10"
)

type IdentityService interface {
	Register(ctx context.Context, email, password, locale string) (*services.User, error)
	Login(ctx context.Context, email, password, totpCode string) (*services.Tokens, error)
	Refresh(ctx context.Context, claims *auth.AccessClaims) (*services.Tokens, error)
	ChangePassword(ctx context.Context, claims *auth.AccessClaims, current, next string) error
}

type ResetService interface {
	RequestReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type MFAService interface {
	Enroll(ctx context.Context, claims *auth.AccessClaims) (*auth.Enrollment, error)
	Confirm(ctx context.Context, claims *auth.AccessClaims, code string) error
}

type AdminService interface {
	GrantRole(ctx context.Context, accountID, role string) error
	RevokeRole(ctx context.Context, accountID, role string) error
	DeleteAccount(ctx context.Context, accountID string) error
}

type Gate interface {
	Authenticate(ctx context.Context, claims *auth.AccessClaims) (*services.User, error)
	Require(ctx context.Context, claims *auth.AccessClaims, role string) error
}

// Pinger reports store health; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the identity endpoints.
type Handler struct {
	identity IdentityService
	reset    ResetService
	mfa      MFAService
	admin    AdminService
	gate     Gate
	sessions *session.Manager
	health   Pinger
	validate *validator.Validate
	log      logging.Logger
}

type Deps struct {
	Identity IdentityService
	Reset    ResetService
	MFA      MFAService
	Admin    AdminService
	Gate     Gate
	Sessions *session.Manager
	// Health is optional; without it /healthz always succeeds.
	Health Pinger
}

func NewHandler(d Deps, log logging.Logger) *Handler {
	return &Handler{
		identity: d.Identity,
		reset:    d.Reset,
		mfa:      d.MFA,
		admin:    d.Admin,
		gate:     d.Gate,
		sessions: d.Sessions,
		health:   d.Health,
		validate: newValidator(),
		log:      log.With("module", "http"),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
	TOTP     string `json:"totp" validate:"omitempty,len=6,numeric"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceErr(w, err)
		return
	}

	tokens, err := h.identity.Login(r.Context(), req.Email, req.Password, req.TOTP)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	h.sessions.Attach(w, tokens.Access)
	h.sessions.AttachRefresh(w, tokens.Refresh)
	writeOK(w)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Detach(w)
	writeOK(w)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := h.sessions.ResolveRefresh(r.Context(), r)
	if claims == nil {
		writeServiceErr(w, errUnauthenticated)
		return
	}

	tokens, err := h.identity.Refresh(r.Context(), claims)
	if err != nil {
		writeServiceErr(w, err)
		return
	}

	h.sessions.Attach(w, tokens.Access)
	writeOK(w)
}

type meResponse struct {
	User *services.User `json:"user"`
}

// Me never answers 401: an anonymous caller gets {"user": null}.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := h.sessions.Resolve(r.Context(), r)
	if claims == nil {
		writeJSON(w, http.StatusOK, meResponse{})
		return
	}

	user, err := h.gate.Authenticate(r.Context(), claims)
	if err != nil {
		if isUnauthenticated(err) {
			writeJSON(w, http.StatusOK, meResponse{})
			return
		}
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: user})
}

type forgotRequest struct {
	Email string `json:"email"`
}

// ForgotPassword answers {"ok": true} for any input so the response does not
// reveal which emails are registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := h.decode(r, &req); err == nil {
		if err := h.reset.RequestReset(r.Context(), req.Email); err != nil {
			h.log.Debug(r.Context(), "forgot password rejected", "error", err)
		}
	}
	writeOK(w)
}

type resetRequest struct {
	Token       string `json:"token" validate:"required,max=256"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceErr(w, err)
		return
	}
	if err := h.reset.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeOK(w)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Locale   string `json:"locale" validate:"omitempty,max=16"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceErr(w, err)
		return
	}
	user, err := h.identity.Register(r.Context(), req.Email, req.Password, req.Locale)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meResponse{User: user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=128"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=128"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceErr(w, err)
		return
	}
	err := h.identity.ChangePassword(r.Context(), claimsFrom(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeOK(w)
}

type enrollResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

func (h *Handler) EnrollTotp(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.mfa.Enroll(r.Context(), claimsFrom(r.Context()))
	if err != nil {
		writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse{Secret: enrollment.Secret, URI: enrollment.ProvisioningURI})
}

type totpVerifyRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (h *Handler) VerifyTotp(w http.ResponseWriter, r *http.Request) {
	var req totpVerifyRequest
	if err := h.decode(r, &req); err != nil {
		writeServiceErr(w, err)
		return
	}
	if err := h.mfa.Confirm(r.Context(), claimsFrom(r.Context()), req.Code); err != nil {
		writeServiceErr(w, err)
		return
	}
	writeOK(w)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.PingContext(r.Context()); err != nil {
			h.log.Error(r.Context(), "health check", "error", err)
			writeErr(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeOK(w)
}

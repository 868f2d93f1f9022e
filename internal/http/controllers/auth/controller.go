// Package auth expone los endpoints de login y logout por realm.
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mercatto/authd/internal/domain/repository"
	httperrors "github.com/mercatto/authd/internal/http/errors"
	"github.com/mercatto/authd/internal/http/helpers"
	"github.com/mercatto/authd/internal/http/middlewares"
	svc "github.com/mercatto/authd/internal/http/services/auth"
	"github.com/mercatto/authd/internal/observability/logger"
)

// CookieConfig describe la cookie de sesión de un realm.
type CookieConfig struct {
	Name string
	TTL  time.Duration
}

// Controller maneja login/logout con credenciales.
type Controller struct {
	service        svc.Service
	adminCookie    CookieConfig
	customerCookie CookieConfig
}

// NewController crea el controller de autenticación.
func NewController(service svc.Service, admin, customer CookieConfig) *Controller {
	return &Controller{service: service, adminCookie: admin, customerCookie: customer}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login maneja POST /auth/{realm}/login
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	realm := repository.Realm(chi.URLParam(r, "realm"))
	if !realm.Valid() {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("unknown realm"))
		return
	}

	var req loginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("email and password required"))
		return
	}

	token, err := c.service.Login(ctx, realm, req.Email, req.Password)
	if err != nil {
		switch err {
		case svc.ErrInvalidCredentials:
			httperrors.WriteError(w, httperrors.ErrInvalidCredentials)
		case svc.ErrAccountDisabled:
			httperrors.WriteError(w, httperrors.ErrAccountDisabled)
		default:
			logger.From(ctx).Error("login failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	cookie := c.cookieFor(realm)
	http.SetCookie(w, &http.Cookie{
		Name:     cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cookie.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	helpers.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
}

// Logout maneja POST /auth/{realm}/logout (detrás del guard del realm).
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	realm := middlewares.GetRealm(ctx)
	snap := middlewares.GetSnapshot(ctx)

	if snap != nil {
		if err := c.service.Logout(ctx, realm, snap.ID); err != nil {
			logger.From(ctx).Error("logout failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
			return
		}
	}

	// Expirar la cookie del realm
	cookie := c.cookieFor(realm)
	http.SetCookie(w, &http.Cookie{
		Name:     cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me maneja GET /auth/{realm}/me (detrás del guard del realm).
// Devuelve el snapshot de sesión. En el canal X-Api-Key no hay identidad,
// así que responde el realm solo.
func (c *Controller) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if snap := middlewares.GetSnapshot(ctx); snap != nil {
		helpers.WriteJSON(w, http.StatusOK, snap)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]string{
		"realm": string(middlewares.GetRealm(ctx)),
	})
}

func (c *Controller) cookieFor(realm repository.Realm) CookieConfig {
	if realm == repository.RealmCustomer {
		return c.customerCookie
	}
	return c.adminCookie
}

// Package social expone los endpoints del flujo OAuth social.
package social

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mercatto/authd/internal/domain/repository"
	httperrors "github.com/mercatto/authd/internal/http/errors"
	"github.com/mercatto/authd/internal/http/helpers"
	"github.com/mercatto/authd/internal/http/middlewares"
	svc "github.com/mercatto/authd/internal/http/services/social"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/social"
)

// Controller maneja el arranque, callback y unlink del flujo social.
type Controller struct {
	service svc.Service
}

// NewController crea el controller social.
func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

// Start maneja GET /auth/{provider}/{state}
// Redirige al endpoint de autorización del provider.
func (c *Controller) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider := social.Provider(chi.URLParam(r, "provider"))
	if !provider.Valid() {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("unknown provider"))
		return
	}

	authURL, err := c.service.Start(ctx, provider, chi.URLParam(r, "state"))
	if err != nil {
		switch err {
		case svc.ErrStateInvalid:
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid state"))
		case svc.ErrUnknownProvider:
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("provider not enabled"))
		default:
			logger.From(ctx).Error("social start failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback maneja GET y POST /auth/{provider}_callback
// Apple vuelve por POST (response_mode=form_post); el resto por GET.
// Pase lo que pase, si el estado es descifrable el browser termina
// redirigido al cliente.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	provider := social.Provider(chi.URLParam(r, "provider"))
	if !provider.Valid() {
		httperrors.WriteError(w, httperrors.ErrInvalidParameter.WithDetail("unknown provider"))
		return
	}

	redirect, err := c.service.Callback(ctx, provider, r)
	if err != nil {
		switch err {
		case svc.ErrStateInvalid:
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("invalid state"))
		case svc.ErrUnknownProvider:
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("provider not enabled"))
		default:
			logger.From(ctx).Error("social callback failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
		}
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

type unlinkRequest struct {
	Provider string `json:"provider"`
	// IdentityID es opcional; si viene debe coincidir con la identidad
	// autenticada. Nunca se desvincula a un tercero.
	IdentityID string `json:"identityId"`
}

// Unlink maneja POST /auth/unlink (detrás del guard customer).
func (c *Controller) Unlink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap := middlewares.GetSnapshot(ctx)
	if snap == nil {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}

	var req unlinkRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}

	provider := social.Provider(req.Provider)
	if !provider.Valid() {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("unknown provider"))
		return
	}

	if req.IdentityID != "" && req.IdentityID != snap.ID {
		httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("identityId does not match the authenticated identity"))
		return
	}

	if err := c.service.Unlink(ctx, snap.ID, provider); err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrNotFound.WithDetail("link not found"))
			return
		}
		logger.From(ctx).Error("unlink failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

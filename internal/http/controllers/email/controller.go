// Package email expone los endpoints de verificación de email por código.
package email

import (
	"net/http"

	"github.com/mercatto/authd/internal/domain/repository"
	"github.com/mercatto/authd/internal/email"
	httperrors "github.com/mercatto/authd/internal/http/errors"
	"github.com/mercatto/authd/internal/http/helpers"
	"github.com/mercatto/authd/internal/http/middlewares"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/session"
)

// Controller maneja el envío y verificación de códigos de email.
// Ambos endpoints corren detrás del guard customer: el código siempre va
// al email registrado de la identidad autenticada.
type Controller struct {
	codes      *email.CodeService
	identities repository.IdentityRepository
	resolver   *session.Resolver
}

// NewController crea el controller de email.
func NewController(codes *email.CodeService, identities repository.IdentityRepository, resolver *session.Resolver) *Controller {
	return &Controller{codes: codes, identities: identities, resolver: resolver}
}

// SendCode maneja POST /auth/email-code
func (c *Controller) SendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := c.callerIdentity(w, r)
	if !ok {
		return
	}
	if identity.Email == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("identity has no email"))
		return
	}

	if err := c.codes.Issue(ctx, identity.Email); err != nil {
		logger.From(ctx).Error("code issue failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	Code string `json:"code"`
}

// Verify maneja POST /auth/email-verification
func (c *Controller) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := c.callerIdentity(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code required"))
		return
	}

	if err := c.codes.Verify(ctx, identity.Email, req.Code); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("code mismatch or expired"))
		return
	}

	if err := c.identities.SetVerified(ctx, identity.ID, true); err != nil {
		logger.From(ctx).Error("verify persist failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}
	c.resolver.Invalidate(repository.RealmCustomer, identity.ID)

	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) callerIdentity(w http.ResponseWriter, r *http.Request) (*repository.Identity, bool) {
	snap := middlewares.GetSnapshot(r.Context())
	if snap == nil {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return nil, false
	}

	identity, err := c.identities.GetByID(r.Context(), repository.RealmCustomer, snap.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			httperrors.WriteError(w, httperrors.ErrTokenInvalid)
			return nil, false
		}
		logger.From(r.Context()).Error("identity lookup failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return nil, false
	}
	return identity, true
}

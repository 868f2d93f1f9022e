// Package auth implementa el login y logout con credenciales por realm.
package auth

import (
	"context"
	"errors"

	"github.com/mercatto/authd/internal/domain/repository"
	jwtx "github.com/mercatto/authd/internal/jwt"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/security/password"
	"github.com/mercatto/authd/internal/session"
)

var (
	// ErrInvalidCredentials cubre email inexistente y password incorrecta.
	// No distinguimos entre ambos hacia afuera.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountDisabled indica una cuenta suspendida.
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// Service define las operaciones de autenticación con credenciales.
type Service interface {
	// Login valida credenciales y emite un token para el realm.
	// Para customers además marca la sesión como abierta.
	Login(ctx context.Context, realm repository.Realm, email, plain string) (string, error)

	// Logout cierra la sesión de un customer. Para admins es un no-op
	// del lado del servidor: el cliente descarta la cookie.
	Logout(ctx context.Context, realm repository.Realm, identityID string) error
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Identities     repository.IdentityRepository
	AdminIssuer    *jwtx.Issuer
	CustomerIssuer *jwtx.Issuer
	Resolver       *session.Resolver
}

type service struct {
	deps Deps
}

// NewService crea el servicio de autenticación.
func NewService(d Deps) Service {
	return &service{deps: d}
}

func (s *service) Login(ctx context.Context, realm repository.Realm, email, plain string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("auth.Login"), logger.Realm(string(realm)))

	id, err := s.deps.Identities.GetByEmail(ctx, realm, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !password.Verify(plain, id.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	if !id.Enabled {
		return "", ErrAccountDisabled
	}

	issuer := s.deps.AdminIssuer
	if realm == repository.RealmCustomer {
		issuer = s.deps.CustomerIssuer

		if err := s.deps.Identities.SetLoggedIn(ctx, id.ID, true); err != nil {
			return "", err
		}
		s.deps.Resolver.Invalidate(realm, id.ID)
	}

	token, err := issuer.Sign(id.ID)
	if err != nil {
		return "", err
	}

	log.Info("login succeeded", logger.IdentityID(id.ID))
	return token, nil
}

func (s *service) Logout(ctx context.Context, realm repository.Realm, identityID string) error {
	if realm != repository.RealmCustomer {
		return nil
	}

	if err := s.deps.Identities.SetLoggedIn(ctx, identityID, false); err != nil && !repository.IsNotFound(err) {
		return err
	}
	// El snapshot cacheado todavía dice is_logged_in=true; invalidarlo
	// hace efectivo el logout de inmediato.
	s.deps.Resolver.Invalidate(realm, identityID)

	logger.From(ctx).Info("logout", logger.Realm(string(realm)), logger.IdentityID(identityID))
	return nil
}

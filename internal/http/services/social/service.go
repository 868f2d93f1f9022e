// Package social orquesta el flujo OAuth completo: arranque, callback y
// desvinculación. La máquina de estados vive en internal/social; acá solo
// se traduce HTTP hacia y desde ella.
package social

import (
	"context"
	"errors"
	"net/http"

	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/social"
	"github.com/mercatto/authd/internal/social/providers"
)

var (
	// ErrUnknownProvider indica un tag de provider no reconocido o no
	// configurado.
	ErrUnknownProvider = errors.New("social: unknown or disabled provider")
	// ErrStateInvalid indica un estado de redirección indescifrable. Sin
	// estado no hay adónde redirigir, así que el flujo corta acá.
	ErrStateInvalid = errors.New("social: redirect state invalid")
)

// Service define el flujo social a nivel HTTP.
type Service interface {
	// Start devuelve la URL de autorización del provider con el estado
	// opaco como parámetro state de OAuth.
	Start(ctx context.Context, provider social.Provider, opaqueState string) (string, error)

	// Callback procesa el retorno del provider y devuelve SIEMPRE una URL
	// de redirección al cliente, salvo que el estado sea indescifrable.
	Callback(ctx context.Context, provider social.Provider, r *http.Request) (string, error)

	// Unlink desvincula el provider de la identidad autenticada.
	Unlink(ctx context.Context, identityID string, provider social.Provider) error
}

// Deps contiene las dependencias del servicio social.
type Deps struct {
	Registry   *providers.Registry
	Reconciler *social.Reconciler
}

type service struct {
	registry   *providers.Registry
	reconciler *social.Reconciler
}

// NewService crea el servicio social.
func NewService(d Deps) Service {
	return &service{registry: d.Registry, reconciler: d.Reconciler}
}

func (s *service) Start(ctx context.Context, provider social.Provider, opaqueState string) (string, error) {
	if _, err := social.Decode(opaqueState); err != nil {
		return "", ErrStateInvalid
	}

	strategy, err := s.registry.Get(provider)
	if err != nil {
		return "", ErrUnknownProvider
	}

	// El estado opaco viaja como state de OAuth y vuelve intacto en el
	// callback. El server no lo persiste.
	authURL := strategy.AuthCodeURL(opaqueState)
	if authURL == "" {
		// One Tap no tiene pantalla de autorización: el widget postea
		// directo al callback.
		return "", ErrUnknownProvider
	}
	return authURL, nil
}

func (s *service) Callback(ctx context.Context, provider social.Provider, r *http.Request) (string, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("social.Callback"),
		logger.Provider(string(provider)),
	)

	state, err := social.Decode(r.FormValue("state"))
	if err != nil {
		return "", ErrStateInvalid
	}

	strategy, err := s.registry.Get(provider)
	if err != nil {
		return "", ErrUnknownProvider
	}

	raw, err := strategy.Callback(ctx, r)
	if err != nil {
		log.Warn("provider callback failed", logger.Err(err))
		return social.Render(state, social.Result{
			Status:  social.StatusBadRequest,
			Message: "could not complete sign in",
		}, nil), nil
	}

	profile, err := social.Normalize(provider, raw)
	if err != nil {
		log.Warn("profile normalization failed", logger.Err(err))
		return social.Render(state, social.Result{
			Status:  social.StatusBadRequest,
			Message: "could not complete sign in",
		}, nil), nil
	}

	res := s.reconciler.Reconcile(ctx, profile, state)
	return social.Render(state, res, &profile), nil
}

func (s *service) Unlink(ctx context.Context, identityID string, provider social.Provider) error {
	return s.reconciler.Unlink(ctx, identityID, provider)
}

// Package providers implements the OAuth transport strategies, one
// sub-file per provider. Each strategy builds the authorization URL and
// completes the callback: code exchange plus profile fetch, returning the
// provider's raw payload for social.Normalize.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/mercatto/authd/internal/social"
)

var (
	ErrProviderDisabled = errors.New("provider not configured")
	ErrCallbackNoCode   = errors.New("callback without authorization code")
)

// Strategy es la estrategia OAuth de un provider.
type Strategy interface {
	Provider() social.Provider

	// AuthCodeURL construye la URL de autorización llevando el estado opaco.
	AuthCodeURL(state string) string

	// Callback completa el round trip: valida el request del provider,
	// intercambia el code y devuelve el payload crudo del perfil.
	Callback(ctx context.Context, r *http.Request) (json.RawMessage, error)
}

// Registry mapea provider tag -> estrategia configurada.
type Registry struct {
	mu sync.RWMutex
	m  map[social.Provider]Strategy
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[social.Provider]Strategy)}
}

func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[s.Provider()] = s
}

// Get retorna la estrategia del provider. ErrProviderDisabled si no está
// registrada (provider deshabilitado por config).
func (r *Registry) Get(p social.Provider) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderDisabled, p)
	}
	return s, nil
}

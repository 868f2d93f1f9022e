package middlewares

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mercatto/authd/internal/domain/repository"
	httperrors "github.com/mercatto/authd/internal/http/errors"
	jwtx "github.com/mercatto/authd/internal/jwt"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/session"
)

// GuardDeps contiene las dependencias del guard de autenticación.
type GuardDeps struct {
	AdminIssuer    *jwtx.Issuer
	CustomerIssuer *jwtx.Issuer
	Resolver       *session.Resolver

	AdminCookie    string
	CustomerCookie string

	// AdminAPIKey habilita el canal alternativo X-Api-Key para el realm
	// admin. Vacío lo deshabilita.
	AdminAPIKey string
}

// RequireAdmin exige un token admin válido o la X-Api-Key configurada.
// El canal de API key no carga snapshot: es para automatización.
func (g GuardDeps) RequireAdmin() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.AdminAPIKey != "" {
				if key := r.Header.Get("X-Api-Key"); key != "" {
					if subtle.ConstantTimeCompare([]byte(key), []byte(g.AdminAPIKey)) == 1 {
						ctx := WithRealm(r.Context(), repository.RealmAdmin)
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
					httperrors.WriteError(w, httperrors.ErrTokenInvalid)
					return
				}
			}
			g.authenticate(next, w, r, repository.RealmAdmin)
		})
	}
}

// RequireCustomer exige un token customer válido y una sesión abierta.
// Un logout previo invalida el token aunque todavía no haya expirado.
func (g GuardDeps) RequireCustomer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.authenticate(next, w, r, repository.RealmCustomer)
		})
	}
}

func (g GuardDeps) authenticate(next http.Handler, w http.ResponseWriter, r *http.Request, realm repository.Realm) {
	raw := g.extractToken(r, realm)
	if raw == "" {
		httperrors.WriteError(w, httperrors.ErrTokenMissing)
		return
	}

	issuer := g.AdminIssuer
	if realm == repository.RealmCustomer {
		issuer = g.CustomerIssuer
	}

	claims, err := issuer.Parse(raw)
	if err != nil {
		if errors.Is(err, jwtx.ErrTokenExpired) {
			httperrors.WriteError(w, httperrors.ErrTokenExpired)
			return
		}
		httperrors.WriteError(w, httperrors.ErrTokenInvalid)
		return
	}

	snap, ok := g.Resolver.Resolve(r.Context(), realm, claims.IdentityID)
	if !ok {
		// Identidad inexistente o storage caído: en ambos casos el token
		// no habilita acceso.
		httperrors.WriteError(w, httperrors.ErrTokenInvalid)
		return
	}

	if !snap.Enabled {
		httperrors.WriteError(w, httperrors.ErrAccountDisabled)
		return
	}
	if realm == repository.RealmCustomer && !snap.IsLoggedIn {
		httperrors.WriteError(w, httperrors.ErrSessionClosed)
		return
	}

	ctx := WithSnapshot(r.Context(), snap)
	ctx = WithRealm(ctx, realm)
	ctx = logger.ToContext(ctx, logger.From(ctx).With(
		logger.Realm(string(realm)),
		logger.IdentityID(snap.ID),
	))

	next.ServeHTTP(w, r.WithContext(ctx))
}

// extractToken busca el token primero en la cookie del realm y después en
// el header Authorization como bearer.
func (g GuardDeps) extractToken(r *http.Request, realm repository.Realm) string {
	cookieName := g.AdminCookie
	if realm == repository.RealmCustomer {
		cookieName = g.CustomerCookie
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

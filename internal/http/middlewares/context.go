package middlewares

import (
	"context"

	"github.com/mercatto/authd/internal/domain/repository"
	"github.com/mercatto/authd/internal/session"
)

type ctxKey string

const (
	// ctxSnapshotKey guarda el snapshot de sesión resuelto por el guard
	ctxSnapshotKey ctxKey = "snapshot"
	// ctxRealmKey guarda el realm autenticado
	ctxRealmKey ctxKey = "realm"
	// ctxRequestIDKey guarda el request ID
	ctxRequestIDKey ctxKey = "request_id"
)

// WithSnapshot inyecta un snapshot resuelto; lo usa el guard y los tests
// de controllers autenticados.
func WithSnapshot(ctx context.Context, snap *session.Snapshot) context.Context {
	return context.WithValue(ctx, ctxSnapshotKey, snap)
}

func WithRealm(ctx context.Context, realm repository.Realm) context.Context {
	return context.WithValue(ctx, ctxRealmKey, realm)
}

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetSnapshot obtiene el snapshot de sesión del contexto.
// Retorna nil si el guard no corrió sobre este request.
func GetSnapshot(ctx context.Context) *session.Snapshot {
	if v := ctx.Value(ctxSnapshotKey); v != nil {
		if s, ok := v.(*session.Snapshot); ok {
			return s
		}
	}
	return nil
}

// GetRealm obtiene el realm autenticado del contexto.
func GetRealm(ctx context.Context) repository.Realm {
	if v := ctx.Value(ctxRealmKey); v != nil {
		if r, ok := v.(repository.Realm); ok {
			return r
		}
	}
	return ""
}

// GetRequestID obtiene el request ID del contexto.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(ctxRequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

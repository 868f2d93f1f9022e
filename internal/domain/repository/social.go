package repository

import (
	"context"
	"time"
)

// SocialLink asocia una identidad con el subject id de un provider OAuth.
// Restricciones en storage: UNIQUE(provider, provider_id) y
// UNIQUE(provider, identity_id). El chequeo aplicativo previo es solo
// advisory; la garantía real bajo concurrencia viene de esas constraints.
type SocialLink struct {
	ID         string
	IdentityID string
	Provider   string // "google", "facebook", "apple"
	ProviderID string
	CreatedAt  time.Time
}

// SocialLinkRepository define operaciones sobre los links sociales.
type SocialLinkRepository interface {
	// GetByProvider busca un link por (provider, providerID).
	// Retorna ErrNotFound si no existe.
	GetByProvider(ctx context.Context, provider, providerID string) (*SocialLink, error)

	// GetByIdentity busca el link de un provider para una identidad.
	// Retorna ErrNotFound si no existe.
	GetByIdentity(ctx context.Context, provider, identityID string) (*SocialLink, error)

	// Link crea el link (identityID, provider, providerID).
	// Retorna ErrConflict si el providerID ya está vinculado a otra identidad
	// o si la identidad ya tiene un link para ese provider.
	Link(ctx context.Context, identityID, provider, providerID string) (*SocialLink, error)

	// Unlink elimina el link del provider para la identidad.
	// Retorna ErrNotFound si no existía.
	Unlink(ctx context.Context, identityID, provider string) error
}

// AppleProfile persiste la divulgación única del perfil de Apple.
// Apple entrega nombre/email solo en el primer consentimiento; este registro
// se crea esa única vez y nunca se sobreescribe.
type AppleProfile struct {
	AppleID     string
	Firstname   string
	Lastname    string
	Email       string
	DisplayName string
	Photo       string
	CreatedAt   time.Time
}

// AppleProfileRepository define operaciones sobre el fallback de Apple.
type AppleProfileRepository interface {
	// Get busca el perfil por appleID. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, appleID string) (*AppleProfile, error)

	// Create persiste el perfil del primer consentimiento.
	// Retorna ErrConflict si ya existe (no sobreescribe nunca).
	Create(ctx context.Context, p AppleProfile) error
}

// BlacklistRepository consulta la lista de emails suspendidos.
type BlacklistRepository interface {
	IsBlacklisted(ctx context.Context, email string) (bool, error)
}

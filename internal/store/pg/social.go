package pg

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercatto/authd/internal/domain/repository"
)

type socialLinkRepo struct {
	pool *pgxpool.Pool
}

func (r *socialLinkRepo) GetByProvider(ctx context.Context, provider, providerID string) (*repository.SocialLink, error) {
	return r.get(ctx,
		`SELECT id, identity_id, provider, provider_id, created_at
		 FROM social_link WHERE provider = $1 AND provider_id = $2`,
		provider, providerID,
	)
}

func (r *socialLinkRepo) GetByIdentity(ctx context.Context, provider, identityID string) (*repository.SocialLink, error) {
	return r.get(ctx,
		`SELECT id, identity_id, provider, provider_id, created_at
		 FROM social_link WHERE provider = $1 AND identity_id = $2`,
		provider, identityID,
	)
}

func (r *socialLinkRepo) get(ctx context.Context, query string, args ...any) (*repository.SocialLink, error) {
	var link repository.SocialLink
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&link.ID, &link.IdentityID, &link.Provider, &link.ProviderID, &link.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *socialLinkRepo) Link(ctx context.Context, identityID, provider, providerID string) (*repository.SocialLink, error) {
	link := repository.SocialLink{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Provider:   provider,
		ProviderID: providerID,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO social_link (id, identity_id, provider, provider_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		link.ID, link.IdentityID, link.Provider, link.ProviderID, link.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return &link, nil
}

func (r *socialLinkRepo) Unlink(ctx context.Context, identityID, provider string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM social_link WHERE identity_id = $1 AND provider = $2`,
		identityID, provider,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type appleProfileRepo struct {
	pool *pgxpool.Pool
}

func (r *appleProfileRepo) Get(ctx context.Context, appleID string) (*repository.AppleProfile, error) {
	var p repository.AppleProfile
	err := r.pool.QueryRow(ctx,
		`SELECT apple_id, firstname, lastname, email, display_name, photo, created_at
		 FROM apple_profile WHERE apple_id = $1`,
		appleID,
	).Scan(&p.AppleID, &p.Firstname, &p.Lastname, &p.Email, &p.DisplayName, &p.Photo, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *appleProfileRepo) Create(ctx context.Context, p repository.AppleProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO apple_profile (apple_id, firstname, lastname, email, display_name, photo, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.AppleID, p.Firstname, p.Lastname, p.Email, p.DisplayName, p.Photo, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

type blacklistRepo struct {
	pool *pgxpool.Pool
}

func (r *blacklistRepo) IsBlacklisted(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_blacklist WHERE email = $1)`,
		strings.ToLower(email),
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

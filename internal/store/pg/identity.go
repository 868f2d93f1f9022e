package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercatto/authd/internal/domain/repository"
)

type identityRepo struct {
	pool *pgxpool.Pool
}

func (r *identityRepo) GetByID(ctx context.Context, realm repository.Realm, id string) (*repository.Identity, error) {
	switch realm {
	case repository.RealmAdmin:
		return r.getAdmin(ctx, "a.id = $1", id)
	case repository.RealmCustomer:
		return r.getCustomer(ctx, "c.id = $1", id)
	default:
		return nil, repository.ErrInvalidInput
	}
}

func (r *identityRepo) GetByEmail(ctx context.Context, realm repository.Realm, email string) (*repository.Identity, error) {
	switch realm {
	case repository.RealmAdmin:
		return r.getAdmin(ctx, "a.email = $1", email)
	case repository.RealmCustomer:
		return r.getCustomer(ctx, "c.email = $1", email)
	default:
		return nil, repository.ErrInvalidInput
	}
}

func (r *identityRepo) getAdmin(ctx context.Context, where string, arg any) (*repository.Identity, error) {
	query := `
		SELECT a.id, a.email, a.password_hash, a.enabled, r.id, r.name, a.created_at
		FROM admin_account a
		JOIN role r ON r.id = a.role_id
		WHERE ` + where + ` AND a.deleted_at IS NULL
	`
	var id repository.Identity
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&id.ID, &id.Email, &id.PasswordHash, &id.Enabled,
		&id.Role.ID, &id.Role.Name, &id.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id.Realm = repository.RealmAdmin
	// Los admins no tienen flag de sesión: siempre logueados mientras el
	// token sea válido.
	id.IsLoggedIn = true
	id.Verified = true
	return &id, nil
}

const customerColumns = `
	c.id, c.email, c.password_hash, c.enabled, c.is_logged_in, c.verify,
	COALESCE(c.name, ''), COALESCE(c.surname, ''), COALESCE(c.photo, ''),
	r.id, r.name, c.created_at
`

func (r *identityRepo) getCustomer(ctx context.Context, where string, arg any) (*repository.Identity, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customer c
		JOIN role r ON r.id = c.role_id
		WHERE ` + where + ` AND c.deleted_at IS NULL
	`
	var id repository.Identity
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&id.ID, &id.Email, &id.PasswordHash, &id.Enabled, &id.IsLoggedIn, &id.Verified,
		&id.Name, &id.Surname, &id.Photo,
		&id.Role.ID, &id.Role.Name, &id.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id.Realm = repository.RealmCustomer
	return &id, nil
}

func (r *identityRepo) FindCustomerByEmailOrLink(ctx context.Context, provider, providerID, email string) (*repository.Identity, error) {
	// Lookup combinado del signin social. El match por link tiene prioridad
	// sobre el match por email: un provider id nunca debe resolver a una
	// identidad distinta de la ya vinculada.
	query := `
		SELECT ` + customerColumns + `
		FROM customer c
		JOIN role r ON r.id = c.role_id
		LEFT JOIN social_link sl
			ON sl.identity_id = c.id AND sl.provider = $1 AND sl.provider_id = $2
		WHERE c.deleted_at IS NULL
			AND (sl.id IS NOT NULL OR (c.email = $3 AND $3 <> ''))
		ORDER BY (sl.id IS NOT NULL) DESC
		LIMIT 1
	`
	var id repository.Identity
	err := r.pool.QueryRow(ctx, query, provider, providerID, email).Scan(
		&id.ID, &id.Email, &id.PasswordHash, &id.Enabled, &id.IsLoggedIn, &id.Verified,
		&id.Name, &id.Surname, &id.Photo,
		&id.Role.ID, &id.Role.Name, &id.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id.Realm = repository.RealmCustomer
	return &id, nil
}

func (r *identityRepo) CreateCustomer(ctx context.Context, input repository.CreateCustomerInput) (*repository.Identity, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	// El rol default se resuelve en el mismo INSERT.
	query := `
		INSERT INTO customer (id, email, password_hash, enabled, is_logged_in, verify,
			name, surname, photo, role_id, created_at, updated_at)
		SELECT $1, $2, $3, TRUE, TRUE, $4, $5, $6, $7, r.id, $8, $8
		FROM role r WHERE r.name = 'customer'
		RETURNING role_id
	`
	var roleID string
	err := r.pool.QueryRow(ctx, query,
		id, input.Email, input.PasswordHash, input.Verified,
		input.Name, input.Surname, input.Photo, now,
	).Scan(&roleID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}

	return &repository.Identity{
		ID:           id,
		Realm:        repository.RealmCustomer,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Enabled:      true,
		IsLoggedIn:   true,
		Verified:     input.Verified,
		Name:         input.Name,
		Surname:      input.Surname,
		Photo:        input.Photo,
		Role:         repository.Role{ID: roleID, Name: "customer"},
		CreatedAt:    now,
	}, nil
}

func (r *identityRepo) SetLoggedIn(ctx context.Context, id string, loggedIn bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customer SET is_logged_in = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, loggedIn,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *identityRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE customer SET verify = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, verified,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

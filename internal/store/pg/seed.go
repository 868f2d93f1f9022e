package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// seedRoles son los roles que el sistema espera presentes.
var seedRoles = []string{"admin", "customer"}

// SeedRoles inserta los roles base si no existen. Idempotente.
func (s *Store) SeedRoles(ctx context.Context) error {
	for _, name := range seedRoles {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO role (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), name,
		)
		if err != nil {
			return fmt.Errorf("seeding role %s: %w", name, err)
		}
	}
	return nil
}

// SeedAdmin crea una cuenta admin si el email no existe. Idempotente.
func (s *Store) SeedAdmin(ctx context.Context, email, passwordHash string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_account (id, email, password_hash, enabled, role_id)
		SELECT $1, $2, $3, TRUE, r.id FROM role r WHERE r.name = 'admin'
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), email, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("seeding admin %s: %w", email, err)
	}
	return nil
}

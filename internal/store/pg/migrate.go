package pg

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Las migraciones SQL se embeben en el binario.
// Formato de archivo: {version}_{name}.sql (ej: 0001_init.sql)

// Migration representa una migración individual.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// migrationFilePattern patrón para nombres de archivo de migración.
var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// Migrator aplica migraciones SQL embebidas sobre el pool del Store.
type Migrator struct {
	migrationsFS  embed.FS
	migrationsDir string
}

// NewMigrator crea un nuevo Migrator.
func NewMigrator(migrationsFS embed.FS, migrationsDir string) *Migrator {
	return &Migrator{
		migrationsFS:  migrationsFS,
		migrationsDir: migrationsDir,
	}
}

// ParseMigrations lee y parsea las migraciones del FS embebido,
// ordenadas por versión.
func (m *Migrator) ParseMigrations() ([]Migration, error) {
	var migrations []Migration

	err := fs.WalkDir(m.migrationsFS, m.migrationsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		filename := filepath.Base(path)
		matches := migrationFilePattern.FindStringSubmatch(filename)
		if matches == nil {
			return nil // Ignorar archivos que no coinciden
		}

		version, _ := strconv.Atoi(matches[1])
		name := matches[2]

		content, err := m.migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			SQL:     string(content),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Run aplica las migraciones pendientes. Retorna las versiones aplicadas.
func (m *Migrator) Run(ctx context.Context, store *Store) ([]int, error) {
	_, err := store.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := m.appliedVersions(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}

	migrations, err := m.ParseMigrations()
	if err != nil {
		return nil, fmt.Errorf("parsing migrations: %w", err)
	}

	var ran []int
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		if err := m.apply(ctx, store, mig); err != nil {
			return ran, fmt.Errorf("applying migration %d_%s: %w", mig.Version, mig.Name, err)
		}
		ran = append(ran, mig.Version)
	}

	return ran, nil
}

func (m *Migrator) appliedVersions(ctx context.Context, store *Store) (map[int]bool, error) {
	rows, err := store.pool.Query(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// apply ejecuta una migración y su registro dentro de una transacción.
func (m *Migrator) apply(ctx context.Context, store *Store, mig Migration) error {
	tx, err := store.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO _migrations (version, name) VALUES ($1, $2)`,
		mig.Version, mig.Name,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Package session implements the cache-backed authentication snapshot used
// on every guarded request. A Snapshot is an ephemeral projection of an
// Identity: it is never the source of truth, lives only in the TTL cache and
// is rebuilt from canonical storage on miss.
package session

import (
	"github.com/mercatto/authd/internal/domain/repository"
)

// RoleRef es la proyección mínima del rol dentro del snapshot.
type RoleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot es la proyección cacheada de una identidad.
type Snapshot struct {
	ID         string  `json:"id"`
	Photo      string  `json:"photo,omitempty"`
	Name       string  `json:"name,omitempty"`
	Surname    string  `json:"surname,omitempty"`
	Enabled    bool    `json:"enabled"`
	IsLoggedIn bool    `json:"isLoggedIn"`
	Role       RoleRef `json:"role"`
}

// FromIdentity proyecta una identidad canónica a snapshot.
func FromIdentity(id *repository.Identity) *Snapshot {
	return &Snapshot{
		ID:         id.ID,
		Photo:      id.Photo,
		Name:       id.Name,
		Surname:    id.Surname,
		Enabled:    id.Enabled,
		IsLoggedIn: id.IsLoggedIn,
		Role:       RoleRef{ID: id.Role.ID, Name: id.Role.Name},
	}
}

// cacheKey separa los realms en el keyspace del cache: un mismo id nunca
// colisiona entre admin y customer.
func cacheKey(realm repository.Realm, id string) string {
	return "session:" + string(realm) + ":" + id
}

package repository

import (
	"context"
	"time"
)

// Realm es el namespace de identidad. Admin y customer comparten la mecánica
// de autenticación pero viven en almacenamiento distinto.
type Realm string

const (
	RealmAdmin    Realm = "admin"
	RealmCustomer Realm = "customer"
)

func (r Realm) Valid() bool { return r == RealmAdmin || r == RealmCustomer }

// Role es la referencia de rol de una identidad.
type Role struct {
	ID   string
	Name string
}

// Identity representa el registro canónico de un admin o customer.
type Identity struct {
	ID           string
	Realm        Realm
	Email        string
	PasswordHash string
	Enabled      bool
	// IsLoggedIn solo aplica al realm customer: se limpia en logout y el
	// guard lo exige en cada request. Para admins siempre es true.
	IsLoggedIn bool
	Verified   bool
	Name       string
	Surname    string
	Photo      string
	Role       Role
	CreatedAt  time.Time
	DeletedAt  *time.Time
}

// CreateCustomerInput contiene los datos para crear un customer.
// Usado tanto por registro local como por signin social.
type CreateCustomerInput struct {
	Email        string
	PasswordHash string
	Name         string
	Surname      string
	Photo        string
	Verified     bool
}

// IdentityRepository define operaciones sobre identidades en ambos realms.
type IdentityRepository interface {
	// GetByID busca una identidad por id dentro de un realm.
	// Filtra soft-deleted y une el rol. Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, realm Realm, id string) (*Identity, error)

	// GetByEmail busca una identidad por email dentro de un realm.
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, realm Realm, email string) (*Identity, error)

	// FindCustomerByEmailOrLink realiza el lookup combinado del signin social:
	// customer cuyo email coincide O que ya tiene el link (provider, providerID).
	// Retorna ErrNotFound si no existe ninguno.
	FindCustomerByEmailOrLink(ctx context.Context, provider, providerID, email string) (*Identity, error)

	// CreateCustomer crea un customer con rol default.
	// Retorna ErrConflict si el email ya existe.
	CreateCustomer(ctx context.Context, input CreateCustomerInput) (*Identity, error)

	// SetLoggedIn actualiza el flag de sesión de un customer.
	SetLoggedIn(ctx context.Context, id string, loggedIn bool) error

	// SetVerified marca el email de un customer como verificado.
	SetVerified(ctx context.Context, id string, verified bool) error
}

package social

import (
	"context"
	"errors"
	"strconv"

	"github.com/mercatto/authd/internal/domain/repository"
	"github.com/mercatto/authd/internal/metrics"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/security/password"
)

// Result statuses. They mirror the HTTP codes the redirect renderer maps
// them to, but nothing in the reconciler writes HTTP.
const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusForbidden  = 403
	StatusNotFound   = 404
)

// Result is the structured outcome of a reconcile run. Every branch of the
// state machine produces one. The reconciler never returns an error, because
// an OAuth callback must always complete so the browser can be redirected.
type Result struct {
	Status  int
	Token   string
	Message string
}

// TokenIssuer firma un token para una identidad resuelta.
type TokenIssuer interface {
	Sign(identityID string) (string, error)
}

// SessionInvalidator descarta el snapshot cacheado de una identidad para
// que el próximo request vea el estado fresco.
type SessionInvalidator interface {
	Invalidate(realm repository.Realm, id string)
}

// Deps contains the reconciler dependencies.
type Deps struct {
	Identities repository.IdentityRepository
	Links      repository.SocialLinkRepository
	Apple      repository.AppleProfileRepository
	Blacklist  repository.BlacklistRepository
	Issuer     TokenIssuer
	Sessions   SessionInvalidator // opcional
}

// Reconciler is the sign-in/link/unlink state machine. It owns the
// cross-entity invariant that a provider id never resolves to two different
// identities; under concurrency the guarantee comes from the storage
// uniqueness constraints, the in-process checks are advisory.
type Reconciler struct {
	identities repository.IdentityRepository
	links      repository.SocialLinkRepository
	apple      repository.AppleProfileRepository
	blacklist  repository.BlacklistRepository
	issuer     TokenIssuer
	sessions   SessionInvalidator
}

func NewReconciler(d Deps) *Reconciler {
	return &Reconciler{
		identities: d.Identities,
		links:      d.Links,
		apple:      d.Apple,
		blacklist:  d.Blacklist,
		issuer:     d.Issuer,
		sessions:   d.Sessions,
	}
}

const (
	msgSuspended     = "account suspended"
	msgAlreadyLinked = "already linked to another account"
	msgNotFound      = "account not found"
	msgSigninFailed  = "could not complete sign in"
)

// Reconcile runs the state machine for a normalized profile and a decoded
// redirect state.
func (r *Reconciler) Reconcile(ctx context.Context, profile SocialAuthData, state RedirectState) Result {
	var res Result
	switch state.Intent {
	case IntentLinking:
		res = r.link(ctx, profile, state)
	default:
		res = r.signin(ctx, profile, state)
	}
	metrics.SocialSignins.WithLabelValues(string(profile.Provider), strconv.Itoa(res.Status)).Inc()
	return res
}

func (r *Reconciler) signin(ctx context.Context, profile SocialAuthData, state RedirectState) Result {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("social.reconciler"),
		logger.Provider(string(profile.Provider)),
	)

	if profile.Provider == ProviderApple {
		profile = r.mergeAppleFallback(ctx, profile)
	}

	if profile.Email != "" {
		listed, err := r.blacklist.IsBlacklisted(ctx, profile.Email)
		if err != nil {
			log.Error("blacklist lookup failed", logger.Err(err))
			return Result{Status: StatusForbidden, Message: msgSuspended}
		}
		if listed {
			log.Warn("blacklisted email rejected", logger.Email(profile.Email))
			return Result{Status: StatusForbidden, Message: msgSuspended}
		}
	}

	provider := profile.Provider.Storage()

	identity, err := r.identities.FindCustomerByEmailOrLink(ctx, provider, profile.ID, profile.Email)
	switch {
	case err == nil:
		if !identity.Enabled {
			log.Warn("disabled identity rejected", logger.IdentityID(identity.ID))
			return Result{Status: StatusForbidden, Message: msgSuspended}
		}
		// Identidad existente: backfill del link si falta.
		if res, ok := r.ensureLink(ctx, identity.ID, provider, profile.ID); !ok {
			return res
		}
		if err := r.reopenSession(ctx, identity); err != nil {
			log.Error("session reopen failed", logger.Err(err))
			return Result{Status: StatusBadRequest, Message: msgSigninFailed}
		}
	case repository.IsNotFound(err):
		if len(state.FallbackScreens) > 0 {
			// El cliente configuró pantallas de registro: no se crea nada,
			// el perfil viaja de vuelta para pre-completar el formulario.
			return Result{Status: StatusNotFound, Message: msgNotFound}
		}
		identity, err = r.createFromProfile(ctx, profile, provider)
		if err != nil {
			log.Error("social identity creation failed", logger.Err(err))
			return Result{Status: StatusBadRequest, Message: msgSigninFailed}
		}
	default:
		log.Error("combined lookup failed", logger.Err(err))
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}
	}

	token, err := r.issuer.Sign(identity.ID)
	if err != nil {
		log.Error("token issuance failed", logger.IdentityID(identity.ID), logger.Err(err))
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}
	}
	log.Info("social signin ok", logger.IdentityID(identity.ID))
	return Result{Status: StatusOK, Token: token}
}

// reopenSession marca la sesión como abierta si un logout previo la cerró.
func (r *Reconciler) reopenSession(ctx context.Context, identity *repository.Identity) error {
	if identity.IsLoggedIn {
		return nil
	}
	if err := r.identities.SetLoggedIn(ctx, identity.ID, true); err != nil {
		return err
	}
	if r.sessions != nil {
		r.sessions.Invalidate(repository.RealmCustomer, identity.ID)
	}
	return nil
}

// ensureLink backfills the (provider, providerID) linkage on an identity
// found by the combined lookup. A conflict from the storage constraint means
// a concurrent writer got there first or the provider id belongs to another
// identity; recover only when the surviving link points at us.
func (r *Reconciler) ensureLink(ctx context.Context, identityID, provider, providerID string) (Result, bool) {
	if _, err := r.links.GetByIdentity(ctx, provider, identityID); err == nil {
		return Result{}, true // already linked, nothing to do
	} else if !repository.IsNotFound(err) {
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}, false
	}

	if _, err := r.links.Link(ctx, identityID, provider, providerID); err != nil {
		if !repository.IsConflict(err) {
			return Result{Status: StatusBadRequest, Message: msgSigninFailed}, false
		}
		surviving, gerr := r.links.GetByProvider(ctx, provider, providerID)
		if gerr != nil || surviving.IdentityID != identityID {
			return Result{Status: StatusBadRequest, Message: msgAlreadyLinked}, false
		}
	}
	return Result{}, true
}

func (r *Reconciler) createFromProfile(ctx context.Context, profile SocialAuthData, provider string) (*repository.Identity, error) {
	hash, err := password.Unusable()
	if err != nil {
		return nil, err
	}
	identity, err := r.identities.CreateCustomer(ctx, repository.CreateCustomerInput{
		Email:        profile.Email,
		PasswordHash: hash,
		Name:         profile.Firstname,
		Surname:      profile.Lastname,
		Photo:        profile.Photo,
		// El provider ya probó la propiedad del email.
		Verified: true,
	})
	if repository.IsConflict(err) {
		// Perdimos la carrera de creación: la constraint rechazó el duplicado.
		// La identidad sobreviviente es la nuestra.
		identity, err = r.identities.FindCustomerByEmailOrLink(ctx, provider, profile.ID, profile.Email)
	}
	if err != nil {
		return nil, err
	}
	// El loser de la carrera re-busca y encuentra la identidad ya vinculada,
	// así que este ensureLink es un no-op para él.
	if res, ok := r.ensureLink(ctx, identity.ID, provider, profile.ID); !ok {
		return nil, errors.New(res.Message)
	}
	return identity, nil
}

// mergeAppleFallback implements Apple's two-phase profile disclosure: the
// full profile exists only on first consent. That first profile is persisted
// once; later signins recover the missing fields from the stored record.
// The stored record is never overwritten.
func (r *Reconciler) mergeAppleFallback(ctx context.Context, profile SocialAuthData) SocialAuthData {
	log := logger.From(ctx).With(logger.Component("social.applefallback"))

	stored, err := r.apple.Get(ctx, profile.ID)
	if repository.IsNotFound(err) {
		rec := repository.AppleProfile{
			AppleID:     profile.ID,
			Firstname:   profile.Firstname,
			Lastname:    profile.Lastname,
			Email:       profile.Email,
			DisplayName: profile.DisplayName,
			Photo:       profile.Photo,
		}
		if cerr := r.apple.Create(ctx, rec); cerr != nil && !repository.IsConflict(cerr) {
			log.Warn("apple fallback persist failed", logger.Err(cerr))
		}
		return profile
	}
	if err != nil {
		log.Warn("apple fallback lookup failed", logger.Err(err))
		return profile
	}

	// Completar solo los campos que el payload actual no trae.
	if profile.Firstname == "" {
		profile.Firstname = stored.Firstname
	}
	if profile.Lastname == "" {
		profile.Lastname = stored.Lastname
	}
	if profile.Email == "" {
		profile.Email = stored.Email
	}
	if profile.DisplayName == "" {
		profile.DisplayName = stored.DisplayName
	}
	if profile.Photo == "" {
		profile.Photo = stored.Photo
	}
	return profile
}

func (r *Reconciler) link(ctx context.Context, profile SocialAuthData, state RedirectState) Result {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("social.reconciler"),
		logger.Provider(string(profile.Provider)),
		logger.IdentityID(state.IdentityID),
	)

	if _, err := r.identities.GetByID(ctx, repository.RealmCustomer, state.IdentityID); err != nil {
		if repository.IsNotFound(err) {
			return Result{Status: StatusNotFound, Message: msgNotFound}
		}
		log.Error("identity lookup failed", logger.Err(err))
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}
	}

	provider := profile.Provider.Storage()

	existing, err := r.links.GetByProvider(ctx, provider, profile.ID)
	switch {
	case err == nil && existing.IdentityID == state.IdentityID:
		return Result{Status: StatusOK} // ya estaba vinculado a esta identidad
	case err == nil:
		log.Warn("provider id linked elsewhere", logger.String("linked_to", existing.IdentityID))
		return Result{Status: StatusBadRequest, Message: msgAlreadyLinked}
	case !repository.IsNotFound(err):
		log.Error("link lookup failed", logger.Err(err))
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}
	}

	// Cambio de cuenta dentro del mismo provider: el link propio anterior
	// se reemplaza. Solo los provider ids ajenos son conflicto.
	if _, err := r.links.GetByIdentity(ctx, provider, state.IdentityID); err == nil {
		if err := r.links.Unlink(ctx, state.IdentityID, provider); err != nil && !repository.IsNotFound(err) {
			log.Error("stale link removal failed", logger.Err(err))
			return Result{Status: StatusBadRequest, Message: msgSigninFailed}
		}
	} else if !repository.IsNotFound(err) {
		log.Error("link lookup failed", logger.Err(err))
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}
	}

	if _, err := r.links.Link(ctx, state.IdentityID, provider, profile.ID); err != nil {
		if repository.IsConflict(err) {
			// La constraint de storage ganó: alguien vinculó primero.
			return Result{Status: StatusBadRequest, Message: msgAlreadyLinked}
		}
		log.Error("link write failed", logger.Err(err))
		return Result{Status: StatusBadRequest, Message: msgSigninFailed}
	}

	log.Info("provider linked")
	return Result{Status: StatusOK} // el caller ya está autenticado: sin token
}

// Unlink removes the named provider's linkage from the caller's own
// identity. Direct authenticated call, not part of the OAuth redirect flow,
// so errors surface normally.
func (r *Reconciler) Unlink(ctx context.Context, identityID string, provider Provider) error {
	if !provider.Valid() {
		return ErrUnknownProvider
	}
	return r.links.Unlink(ctx, identityID, provider.Storage())
}

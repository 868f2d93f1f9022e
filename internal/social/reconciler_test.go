package social

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mercatto/authd/internal/domain/repository"
)

// ─── fakes en memoria ───

type memIdentities struct {
	mu    sync.Mutex
	seq   int
	byID  map[string]*repository.Identity
	links *memLinks
	// beforeCreate corre antes de CreateCustomer; permite simular a un
	// escritor concurrente que gana la carrera de creación.
	beforeCreate func()
}

func newMemIdentities(links *memLinks) *memIdentities {
	return &memIdentities{byID: make(map[string]*repository.Identity), links: links}
}

func (m *memIdentities) add(id *repository.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id.ID] = id
}

func (m *memIdentities) GetByID(_ context.Context, realm repository.Realm, id string) (*repository.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok || identity.Realm != realm {
		return nil, repository.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (m *memIdentities) GetByEmail(_ context.Context, realm repository.Realm, email string) (*repository.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Realm == realm && identity.Email == email {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memIdentities) FindCustomerByEmailOrLink(_ context.Context, provider, providerID, email string) (*repository.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// El match por link tiene prioridad sobre el match por email.
	if link := m.links.find(provider, providerID); link != nil {
		if identity, ok := m.byID[link.IdentityID]; ok {
			cp := *identity
			return &cp, nil
		}
	}
	if email != "" {
		for _, identity := range m.byID {
			if identity.Realm == repository.RealmCustomer && identity.Email == email {
				cp := *identity
				return &cp, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memIdentities) CreateCustomer(_ context.Context, in repository.CreateCustomerInput) (*repository.Identity, error) {
	if m.beforeCreate != nil {
		hook := m.beforeCreate
		m.beforeCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.byID {
		if identity.Email == in.Email && in.Email != "" {
			return nil, repository.ErrConflict
		}
	}
	m.seq++
	id := &repository.Identity{
		ID:           fmt.Sprintf("cust-%d", m.seq),
		Realm:        repository.RealmCustomer,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Enabled:      true,
		IsLoggedIn:   true,
		Verified:     in.Verified,
		Name:         in.Name,
		Surname:      in.Surname,
		Photo:        in.Photo,
		Role:         repository.Role{ID: "r-customer", Name: "customer"},
	}
	m.byID[id.ID] = id
	cp := *id
	return &cp, nil
}

func (m *memIdentities) SetLoggedIn(_ context.Context, id string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.IsLoggedIn = v
	return nil
}

func (m *memIdentities) SetVerified(_ context.Context, id string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Verified = v
	return nil
}

type memLinks struct {
	mu    sync.Mutex
	seq   int
	links []*repository.SocialLink
}

func (m *memLinks) find(provider, providerID string) *repository.SocialLink {
	for _, l := range m.links {
		if l.Provider == provider && l.ProviderID == providerID {
			return l
		}
	}
	return nil
}

func (m *memLinks) GetByProvider(_ context.Context, provider, providerID string) (*repository.SocialLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.find(provider, providerID); l != nil {
		cp := *l
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memLinks) GetByIdentity(_ context.Context, provider, identityID string) (*repository.SocialLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Provider == provider && l.IdentityID == identityID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memLinks) Link(_ context.Context, identityID, provider, providerID string) (*repository.SocialLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Las dos constraints de unicidad del storage real.
	for _, l := range m.links {
		if l.Provider == provider && (l.ProviderID == providerID || l.IdentityID == identityID) {
			return nil, repository.ErrConflict
		}
	}
	m.seq++
	l := &repository.SocialLink{
		ID:         fmt.Sprintf("link-%d", m.seq),
		IdentityID: identityID,
		Provider:   provider,
		ProviderID: providerID,
	}
	m.links = append(m.links, l)
	cp := *l
	return &cp, nil
}

func (m *memLinks) Unlink(_ context.Context, identityID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.IdentityID == identityID && l.Provider == provider {
			m.links = append(m.links[:i], m.links[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type memApple struct {
	mu sync.Mutex
	m  map[string]repository.AppleProfile
}

func newMemApple() *memApple { return &memApple{m: make(map[string]repository.AppleProfile)} }

func (m *memApple) Get(_ context.Context, appleID string) (*repository.AppleProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.m[appleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memApple) Create(_ context.Context, p repository.AppleProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[p.AppleID]; ok {
		return repository.ErrConflict
	}
	m.m[p.AppleID] = p
	return nil
}

type memBlacklist struct{ emails map[string]bool }

func (m *memBlacklist) IsBlacklisted(_ context.Context, email string) (bool, error) {
	return m.emails[email], nil
}

type fakeIssuer struct{ fail bool }

func (f *fakeIssuer) Sign(id string) (string, error) {
	if f.fail {
		return "", errors.New("boom")
	}
	return "tok-" + id, nil
}

type recordInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordInvalidator) Invalidate(realm repository.Realm, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, string(realm)+":"+id)
}

type fixture struct {
	identities *memIdentities
	links      *memLinks
	apple      *memApple
	blacklist  *memBlacklist
	sessions   *recordInvalidator
	rec        *Reconciler
}

func newFixture() *fixture {
	links := &memLinks{}
	identities := newMemIdentities(links)
	apple := newMemApple()
	blacklist := &memBlacklist{emails: map[string]bool{}}
	sessions := &recordInvalidator{}
	rec := NewReconciler(Deps{
		Identities: identities,
		Links:      links,
		Apple:      apple,
		Blacklist:  blacklist,
		Issuer:     &fakeIssuer{},
		Sessions:   sessions,
	})
	return &fixture{identities: identities, links: links, apple: apple, blacklist: blacklist, sessions: sessions, rec: rec}
}

func signinState() RedirectState {
	return RedirectState{Scheme: "app", Screens: []string{"home"}, Intent: IntentSignin}
}

func googleProfileData(id, email string) SocialAuthData {
	return SocialAuthData{Provider: ProviderGoogle, ID: id, Email: email, Firstname: "Ana"}
}

// ─── signin ───

func TestReconcile_SigninCreatesIdentityWithoutFallback(t *testing.T) {
	f := newFixture()

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "ana@example.com"), signinState())

	if res.Status != StatusOK || res.Token == "" {
		t.Fatalf("expected 200 with token, got %+v", res)
	}
	identity, err := f.identities.GetByEmail(context.Background(), repository.RealmCustomer, "ana@example.com")
	if err != nil {
		t.Fatalf("identity not created: %v", err)
	}
	if !identity.Verified {
		t.Fatalf("social identity must be born verified")
	}
	if identity.PasswordHash == "" {
		t.Fatalf("identity must carry an unusable hash, not an empty one")
	}
	if _, err := f.links.GetByProvider(context.Background(), "google", "g-1"); err != nil {
		t.Fatalf("link not created: %v", err)
	}
}

func TestReconcile_SigninNoMatchWithFallbackDoesNotCreate(t *testing.T) {
	f := newFixture()
	state := signinState()
	state.FallbackScreens = []string{"register"}

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "ana@example.com"), state)

	if res.Status != StatusNotFound {
		t.Fatalf("expected 404, got %+v", res)
	}
	if res.Token != "" {
		t.Fatalf("404 must not carry a token")
	}
	if _, err := f.identities.GetByEmail(context.Background(), repository.RealmCustomer, "ana@example.com"); !repository.IsNotFound(err) {
		t.Fatalf("identity must not be created on 404 path")
	}
}

func TestReconcile_SigninByLinkIgnoresEmailChange(t *testing.T) {
	f := newFixture()
	existing, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "old@example.com"})
	f.links.Link(context.Background(), existing.ID, "google", "g-1")

	// El provider reporta otro email, pero el link manda.
	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "new@example.com"), signinState())

	if res.Status != StatusOK || res.Token != "tok-"+existing.ID {
		t.Fatalf("expected signin as existing identity, got %+v", res)
	}
}

func TestReconcile_SigninByEmailBackfillsLink(t *testing.T) {
	f := newFixture()
	existing, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "ana@example.com"), signinState())

	if res.Status != StatusOK {
		t.Fatalf("expected 200, got %+v", res)
	}
	link, err := f.links.GetByProvider(context.Background(), "google", "g-1")
	if err != nil || link.IdentityID != existing.ID {
		t.Fatalf("link not backfilled: %v %+v", err, link)
	}
}

func TestReconcile_SigninBlacklisted(t *testing.T) {
	f := newFixture()
	f.blacklist.emails["ana@example.com"] = true

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "ana@example.com"), signinState())

	if res.Status != StatusForbidden || res.Message != "account suspended" {
		t.Fatalf("expected 403 suspended, got %+v", res)
	}
}

func TestReconcile_SigninDisabledIdentity(t *testing.T) {
	f := newFixture()
	existing, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})
	f.identities.byID[existing.ID].Enabled = false

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "ana@example.com"), signinState())

	if res.Status != StatusForbidden {
		t.Fatalf("expected 403, got %+v", res)
	}
}

func TestReconcile_SigninReopensClosedSession(t *testing.T) {
	f := newFixture()
	existing, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})
	f.identities.byID[existing.ID].IsLoggedIn = false

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "ana@example.com"), signinState())

	if res.Status != StatusOK {
		t.Fatalf("expected 200, got %+v", res)
	}
	if !f.identities.byID[existing.ID].IsLoggedIn {
		t.Fatalf("session flag not reopened")
	}
	if len(f.sessions.calls) == 0 {
		t.Fatalf("snapshot not invalidated on reopen")
	}
}

func TestReconcile_CreateRaceLoserRecovers(t *testing.T) {
	f := newFixture()
	// Un escritor concurrente crea la misma identidad entre el lookup y el
	// insert: nuestra creación choca con la constraint y el re-lookup debe
	// encontrar a la identidad sobreviviente.
	var survivorID string
	f.identities.beforeCreate = func() {
		survivor, err := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "race@example.com"})
		if err != nil {
			t.Fatalf("seeding survivor: %v", err)
		}
		survivorID = survivor.ID
		f.links.Link(context.Background(), survivor.ID, "google", "g-9")
	}

	res := f.rec.Reconcile(context.Background(), googleProfileData("g-9", "race@example.com"), signinState())

	if res.Status != StatusOK || res.Token != "tok-"+survivorID {
		t.Fatalf("loser must resolve to survivor, got %+v", res)
	}
	if len(f.links.links) != 1 {
		t.Fatalf("race must not duplicate links, got %d", len(f.links.links))
	}
}

func TestReconcile_ProviderIDNeverSplitsAcrossIdentities(t *testing.T) {
	f := newFixture()
	a, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "a@example.com"})
	f.links.Link(context.Background(), a.ID, "google", "g-1")
	f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "b@example.com"})

	// El perfil matchea b por email, pero g-1 ya pertenece a a: el lookup
	// combinado prioriza el link y resuelve a.
	res := f.rec.Reconcile(context.Background(), googleProfileData("g-1", "b@example.com"), signinState())

	if res.Status != StatusOK || res.Token != "tok-"+a.ID {
		t.Fatalf("provider id must keep resolving to its linked identity, got %+v", res)
	}
}

// ─── apple two-phase ───

func TestReconcile_AppleFirstConsentPersistsProfile(t *testing.T) {
	f := newFixture()
	profile := SocialAuthData{
		Provider: ProviderApple, ID: "ap-1",
		Firstname: "Eva", Lastname: "López", Email: "eva@icloud.com",
		DisplayName: "Eva López",
	}

	res := f.rec.Reconcile(context.Background(), profile, signinState())
	if res.Status != StatusOK {
		t.Fatalf("expected 200, got %+v", res)
	}

	stored, err := f.apple.Get(context.Background(), "ap-1")
	if err != nil || stored.Email != "eva@icloud.com" || stored.Firstname != "Eva" {
		t.Fatalf("first consent profile not persisted: %v %+v", err, stored)
	}
}

func TestReconcile_AppleSecondSigninMergesStoredProfile(t *testing.T) {
	f := newFixture()

	first := SocialAuthData{
		Provider: ProviderApple, ID: "ap-1",
		Firstname: "Eva", Lastname: "López", Email: "eva@icloud.com",
	}
	if res := f.rec.Reconcile(context.Background(), first, signinState()); res.Status != StatusOK {
		t.Fatalf("first signin: %+v", res)
	}

	// Segundo signin: Apple solo manda el id. El merge recupera el email
	// almacenado y el lookup combinado encuentra a la misma identidad.
	second := SocialAuthData{Provider: ProviderApple, ID: "ap-1"}
	res := f.rec.Reconcile(context.Background(), second, signinState())
	if res.Status != StatusOK {
		t.Fatalf("second signin: %+v", res)
	}

	identities := 0
	for range f.identities.byID {
		identities++
	}
	if identities != 1 {
		t.Fatalf("second apple signin must not create a second identity, got %d", identities)
	}
}

func TestReconcile_AppleStoredProfileNeverOverwritten(t *testing.T) {
	f := newFixture()

	first := SocialAuthData{Provider: ProviderApple, ID: "ap-1", Firstname: "Eva", Email: "eva@icloud.com"}
	f.rec.Reconcile(context.Background(), first, signinState())

	// Un payload posterior con otros datos no debe pisar el registro.
	later := SocialAuthData{Provider: ProviderApple, ID: "ap-1", Firstname: "Hacked", Email: "eva@icloud.com"}
	f.rec.Reconcile(context.Background(), later, signinState())

	stored, _ := f.apple.Get(context.Background(), "ap-1")
	if stored.Firstname != "Eva" {
		t.Fatalf("stored apple profile was overwritten: %+v", stored)
	}
}

// ─── linking ───

func linkingState(identityID string) RedirectState {
	return RedirectState{
		Scheme: "app", Screens: []string{"settings"},
		Intent: IntentLinking, IdentityID: identityID,
	}
}

func TestReconcile_LinkingAttachesProvider(t *testing.T) {
	f := newFixture()
	owner, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})

	res := f.rec.Reconcile(context.Background(), SocialAuthData{Provider: ProviderFacebook, ID: "fb-1"}, linkingState(owner.ID))

	if res.Status != StatusOK {
		t.Fatalf("expected 200, got %+v", res)
	}
	if res.Token != "" {
		t.Fatalf("linking must not issue a token")
	}
	link, err := f.links.GetByProvider(context.Background(), "facebook", "fb-1")
	if err != nil || link.IdentityID != owner.ID {
		t.Fatalf("link missing: %v %+v", err, link)
	}
}

func TestReconcile_LinkingIdempotent(t *testing.T) {
	f := newFixture()
	owner, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})
	f.links.Link(context.Background(), owner.ID, "facebook", "fb-1")

	res := f.rec.Reconcile(context.Background(), SocialAuthData{Provider: ProviderFacebook, ID: "fb-1"}, linkingState(owner.ID))

	if res.Status != StatusOK {
		t.Fatalf("re-linking the same provider id must be a 200 no-op, got %+v", res)
	}
}

func TestReconcile_LinkingReplacesOwnLinkOnAccountSwitch(t *testing.T) {
	f := newFixture()
	owner, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})
	f.links.Link(context.Background(), owner.ID, "google", "g-1")

	// Vincular otra cuenta Google reemplaza el link propio anterior en vez
	// de chocar con la unicidad (provider, identity).
	res := f.rec.Reconcile(context.Background(), SocialAuthData{Provider: ProviderGoogle, ID: "g-2"}, linkingState(owner.ID))

	if res.Status != StatusOK {
		t.Fatalf("account switch must succeed, got %+v", res)
	}
	if _, err := f.links.GetByProvider(context.Background(), "google", "g-1"); !repository.IsNotFound(err) {
		t.Fatalf("stale link survived the switch")
	}
	link, err := f.links.GetByProvider(context.Background(), "google", "g-2")
	if err != nil || link.IdentityID != owner.ID {
		t.Fatalf("new link missing: %v %+v", err, link)
	}
}

func TestReconcile_LinkingRejectsForeignProviderID(t *testing.T) {
	f := newFixture()
	owner, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "a@example.com"})
	other, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "b@example.com"})
	f.links.Link(context.Background(), other.ID, "facebook", "fb-1")

	res := f.rec.Reconcile(context.Background(), SocialAuthData{Provider: ProviderFacebook, ID: "fb-1"}, linkingState(owner.ID))

	if res.Status != StatusBadRequest || res.Message != "already linked to another account" {
		t.Fatalf("expected 400 already linked, got %+v", res)
	}
}

func TestReconcile_LinkingUnknownIdentity(t *testing.T) {
	f := newFixture()

	res := f.rec.Reconcile(context.Background(), SocialAuthData{Provider: ProviderFacebook, ID: "fb-1"}, linkingState("ghost"))

	if res.Status != StatusNotFound {
		t.Fatalf("expected 404, got %+v", res)
	}
}

func TestReconcile_OneTapFoldsToGoogleStorage(t *testing.T) {
	f := newFixture()
	owner, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})
	f.links.Link(context.Background(), owner.ID, "google", "g-1")

	// Un signin por One Tap con el mismo subject debe resolver al mismo
	// registro: ambos tags comparten el namespace "google".
	res := f.rec.Reconcile(context.Background(), SocialAuthData{Provider: ProviderGoogleOneTap, ID: "g-1", Email: "ana@example.com"}, signinState())

	if res.Status != StatusOK || res.Token != "tok-"+owner.ID {
		t.Fatalf("one tap must resolve via google links, got %+v", res)
	}
}

// ─── unlink ───

func TestUnlink(t *testing.T) {
	f := newFixture()
	owner, _ := f.identities.CreateCustomer(context.Background(), repository.CreateCustomerInput{Email: "ana@example.com"})
	f.links.Link(context.Background(), owner.ID, "google", "g-1")

	if err := f.rec.Unlink(context.Background(), owner.ID, ProviderGoogleOneTap); err != nil {
		t.Fatalf("unlink via one tap tag: %v", err)
	}
	if _, err := f.links.GetByProvider(context.Background(), "google", "g-1"); !repository.IsNotFound(err) {
		t.Fatalf("link survived unlink")
	}

	if err := f.rec.Unlink(context.Background(), owner.ID, ProviderGoogle); !repository.IsNotFound(err) {
		t.Fatalf("expected not found on second unlink, got %v", err)
	}
	if err := f.rec.Unlink(context.Background(), owner.ID, Provider("twitter")); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

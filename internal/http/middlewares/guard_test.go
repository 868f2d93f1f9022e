package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mercatto/authd/internal/cache/memory"
	"github.com/mercatto/authd/internal/domain/repository"
	jwtx "github.com/mercatto/authd/internal/jwt"
	"github.com/mercatto/authd/internal/session"
)

type guardFixture struct {
	deps       GuardDeps
	identities map[string]*repository.Identity
}

func newGuardFixture() *guardFixture {
	f := &guardFixture{identities: make(map[string]*repository.Identity)}
	fetch := func(_ context.Context, realm repository.Realm, id string) (*repository.Identity, error) {
		identity, ok := f.identities[string(realm)+":"+id]
		if !ok {
			return nil, repository.ErrNotFound
		}
		cp := *identity
		return &cp, nil
	}
	f.deps = GuardDeps{
		AdminIssuer:    jwtx.NewIssuer("admin-secret", "authd-admin", time.Hour),
		CustomerIssuer: jwtx.NewIssuer("customer-secret", "authd-customer", time.Hour),
		Resolver:       session.NewResolver(memory.New(time.Minute), fetch, time.Minute),
		AdminCookie:    "admin_token",
		CustomerCookie: "customer_token",
		AdminAPIKey:    "top-secret-key",
	}
	return f
}

func (f *guardFixture) addCustomer(id string, enabled, loggedIn bool) {
	f.identities["customer:"+id] = &repository.Identity{
		ID: id, Realm: repository.RealmCustomer,
		Enabled: enabled, IsLoggedIn: loggedIn,
		Role: repository.Role{ID: "r1", Name: "customer"},
	}
}

func (f *guardFixture) addAdmin(id string) {
	f.identities["admin:"+id] = &repository.Identity{
		ID: id, Realm: repository.RealmAdmin,
		Enabled: true, IsLoggedIn: true,
		Role: repository.Role{ID: "r0", Name: "admin"},
	}
}

// echoHandler reporta lo que el guard dejó en el contexto.
func echoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		realm := GetRealm(r.Context())
		snap := GetSnapshot(r.Context())
		resp := map[string]any{"realm": string(realm), "hasSnapshot": snap != nil}
		if snap != nil {
			resp["id"] = snap.ID
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	})
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body not json: %v (%q)", err, rec.Body.String())
	}
	return body.Code
}

func TestGuard_MissingToken(t *testing.T) {
	f := newGuardFixture()
	h := f.deps.RequireCustomer()(echoHandler(t))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errCode(t, rec); code != "TOKEN_MISSING" {
		t.Fatalf("code = %q", code)
	}
}

func TestGuard_GarbageToken(t *testing.T) {
	f := newGuardFixture()
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || errCode(t, rec) != "TOKEN_INVALID" {
		t.Fatalf("status=%d code=%q", rec.Code, errCode(t, rec))
	}
}

func TestGuard_ExpiredToken(t *testing.T) {
	f := newGuardFixture()
	f.addCustomer("c1", true, true)
	expired := jwtx.NewIssuer("customer-secret", "authd-customer", -time.Minute)
	raw, err := expired.Sign("c1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || errCode(t, rec) != "TOKEN_EXPIRED" {
		t.Fatalf("status=%d code=%q", rec.Code, errCode(t, rec))
	}
}

func TestGuard_CrossRealmTokenRejected(t *testing.T) {
	f := newGuardFixture()
	f.addAdmin("a1")
	raw, err := f.deps.AdminIssuer.Sign("a1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("admin token must not pass the customer guard, status=%d", rec.Code)
	}
}

func TestGuard_UnknownIdentity(t *testing.T) {
	f := newGuardFixture()
	raw, err := f.deps.CustomerIssuer.Sign("ghost")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || errCode(t, rec) != "TOKEN_INVALID" {
		t.Fatalf("status=%d code=%q", rec.Code, errCode(t, rec))
	}
}

func TestGuard_DisabledIdentity(t *testing.T) {
	f := newGuardFixture()
	f.addCustomer("c1", false, true)
	raw, _ := f.deps.CustomerIssuer.Sign("c1")
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden || errCode(t, rec) != "ACCOUNT_DISABLED" {
		t.Fatalf("status=%d code=%q", rec.Code, errCode(t, rec))
	}
}

func TestGuard_ClosedCustomerSession(t *testing.T) {
	f := newGuardFixture()
	f.addCustomer("c1", true, false)
	raw, _ := f.deps.CustomerIssuer.Sign("c1")
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || errCode(t, rec) != "SESSION_CLOSED" {
		t.Fatalf("status=%d code=%q", rec.Code, errCode(t, rec))
	}
}

func TestGuard_CookieAndBearerBothWork(t *testing.T) {
	f := newGuardFixture()
	f.addCustomer("c1", true, true)
	raw, _ := f.deps.CustomerIssuer.Sign("c1")
	h := f.deps.RequireCustomer()(echoHandler(t))

	byCookie := httptest.NewRequest(http.MethodGet, "/me", nil)
	byCookie.AddCookie(&http.Cookie{Name: "customer_token", Value: raw})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, byCookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie auth failed: %d %s", rec.Code, rec.Body.String())
	}

	byHeader := httptest.NewRequest(http.MethodGet, "/me", nil)
	byHeader.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, byHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer auth failed: %d %s", rec.Code, rec.Body.String())
	}

	var body struct {
		ID    string `json:"id"`
		Realm string `json:"realm"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.ID != "c1" || body.Realm != "customer" {
		t.Fatalf("context not populated: %+v", body)
	}
}

func TestGuard_AdminToken(t *testing.T) {
	f := newGuardFixture()
	f.addAdmin("a1")
	raw, _ := f.deps.AdminIssuer.Sign("a1")
	h := f.deps.RequireAdmin()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "admin_token", Value: raw})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("admin auth failed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGuard_AdminAPIKeyChannel(t *testing.T) {
	f := newGuardFixture()
	h := f.deps.RequireAdmin()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Api-Key", "top-secret-key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("api key auth failed: %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Realm       string `json:"realm"`
		HasSnapshot bool   `json:"hasSnapshot"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	// El canal de API key no carga snapshot.
	if body.Realm != "admin" || body.HasSnapshot {
		t.Fatalf("unexpected context for api key channel: %+v", body)
	}
}

func TestGuard_WrongAPIKeyDoesNotFallThrough(t *testing.T) {
	f := newGuardFixture()
	f.addAdmin("a1")
	raw, _ := f.deps.AdminIssuer.Sign("a1")
	h := f.deps.RequireAdmin()(echoHandler(t))

	// API key errónea rechaza aunque el request también traiga un token
	// válido: el canal no hace fallback.
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Api-Key", "wrong")
	req.AddCookie(&http.Cookie{Name: "admin_token", Value: raw})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong api key must reject, got %d", rec.Code)
	}
}

func TestGuard_LogoutVisibleAfterInvalidate(t *testing.T) {
	f := newGuardFixture()
	f.addCustomer("c1", true, true)
	raw, _ := f.deps.CustomerIssuer.Sign("c1")
	h := f.deps.RequireCustomer()(echoHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed request failed: %d", rec.Code)
	}

	// Logout canónico + invalidación del snapshot: el mismo token debe
	// dejar de servir en el request siguiente.
	f.identities["customer:c1"].IsLoggedIn = false
	f.deps.Resolver.Invalidate(repository.RealmCustomer, "c1")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized || errCode(t, rec) != "SESSION_CLOSED" {
		t.Fatalf("status=%d code=%q", rec.Code, errCode(t, rec))
	}
}

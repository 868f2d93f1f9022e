package social

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalize_Google(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"id": "g-123",
		"given_name": "Ana",
		"family_name": "García",
		"emails": [{"value": "Ana.Garcia@Gmail.com"}],
		"photos": [{"value": "https://lh3.example/photo.jpg"}]
	}`)

	d, err := Normalize(ProviderGoogle, raw)
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if d.ID != "g-123" || d.Firstname != "Ana" || d.Lastname != "García" {
		t.Fatalf("mismatch: %+v", d)
	}
	if d.Email != "ana.garcia@gmail.com" {
		t.Fatalf("email not lowercased: %q", d.Email)
	}
	if d.Photo != "https://lh3.example/photo.jpg" {
		t.Fatalf("photo: %q", d.Photo)
	}
	if d.DisplayName != "Ana García" {
		t.Fatalf("display name: %q", d.DisplayName)
	}
}

func TestNormalize_GoogleOneTap_NestedName(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"id": "g-123",
		"name": {"givenName": "Ana", "familyName": "García"},
		"emails": [{"value": "ana@gmail.com"}]
	}`)

	d, err := Normalize(ProviderGoogleOneTap, raw)
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if d.Firstname != "Ana" || d.Lastname != "García" {
		t.Fatalf("nested name not mapped: %+v", d)
	}
	if d.Provider != ProviderGoogleOneTap {
		t.Fatalf("provider tag: %q", d.Provider)
	}
	// El mismo payload por el tag genérico de Google NO encuentra el nombre:
	// el dispatch es por tag, nunca por sniffing de campos.
	g, err := Normalize(ProviderGoogle, raw)
	if err != nil {
		t.Fatalf("Normalize google err: %v", err)
	}
	if g.Firstname != "" {
		t.Fatalf("google mapping should not read nested name: %+v", g)
	}
}

func TestNormalize_Facebook(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"id": "98765",
		"first_name": "Juan",
		"last_name": "Pérez",
		"email": "Juan@Example.com",
		"picture": {"data": {"url": "https://graph.example/pic"}}
	}`)

	d, err := Normalize(ProviderFacebook, raw)
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if d.Email != "juan@example.com" || d.Photo != "https://graph.example/pic" {
		t.Fatalf("mismatch: %+v", d)
	}
}

func TestNormalize_FacebookWithheldEmail(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"id": "98765", "first_name": "Juan"}`)

	d, err := Normalize(ProviderFacebook, raw)
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if d.Email != "98765@facebook.local" {
		t.Fatalf("pseudo-email expected, got %q", d.Email)
	}
}

func TestNormalize_AppleNeverFabricates(t *testing.T) {
	t.Parallel()

	// Segundo signin de Apple: solo llega el id.
	raw := json.RawMessage(`{"id": "001234.abcdef"}`)

	d, err := Normalize(ProviderApple, raw)
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if d.ID != "001234.abcdef" {
		t.Fatalf("id: %q", d.ID)
	}
	if d.Email != "" || d.Firstname != "" || d.Lastname != "" || d.DisplayName != "" {
		t.Fatalf("apple fields must stay empty when absent: %+v", d)
	}
}

func TestNormalize_AppleFirstConsent(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"id": "001234.abcdef",
		"name": {"firstName": "Eva", "lastName": "López"},
		"email": "eva@icloud.com"
	}`)

	d, err := Normalize(ProviderApple, raw)
	if err != nil {
		t.Fatalf("Normalize err: %v", err)
	}
	if d.Firstname != "Eva" || d.Email != "eva@icloud.com" {
		t.Fatalf("mismatch: %+v", d)
	}
}

func TestNormalize_MissingID(t *testing.T) {
	t.Parallel()

	for _, p := range []Provider{ProviderGoogle, ProviderGoogleOneTap, ProviderFacebook, ProviderApple} {
		_, err := Normalize(p, json.RawMessage(`{"email": "x@example.com"}`))
		if !errors.Is(err, ErrProfileWithoutID) {
			t.Fatalf("%s: expected ErrProfileWithoutID, got %v", p, err)
		}
	}
}

func TestNormalize_UnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := Normalize(Provider("twitter"), json.RawMessage(`{"id":"1"}`))
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestProvider_Storage(t *testing.T) {
	t.Parallel()

	if ProviderGoogleOneTap.Storage() != "google" {
		t.Fatalf("one tap must fold to google storage, got %q", ProviderGoogleOneTap.Storage())
	}
	if ProviderApple.Storage() != "apple" {
		t.Fatalf("apple storage: %q", ProviderApple.Storage())
	}
}

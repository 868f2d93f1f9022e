package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/api/idtoken"

	"github.com/mercatto/authd/internal/social"
)

// GoogleOneTap maneja el credential de One Tap. No hay round trip de
// autorización: el widget de Google postea el ID token directo al
// callback, así que AuthCodeURL no aplica.
type GoogleOneTap struct {
	clientID string
	// validate verifica firma, expiración, issuer y audiencia del
	// credential contra las claves públicas de Google.
	validate func(ctx context.Context, credential, audience string) (*idtoken.Payload, error)
}

// NewGoogleOneTap crea la estrategia de One Tap.
func NewGoogleOneTap(clientID string) *GoogleOneTap {
	return &GoogleOneTap{clientID: clientID, validate: idtoken.Validate}
}

func (g *GoogleOneTap) Provider() social.Provider { return social.ProviderGoogleOneTap }

// AuthCodeURL retorna vacío: One Tap no tiene pantalla de consentimiento
// hosteada por el provider.
func (g *GoogleOneTap) AuthCodeURL(string) string { return "" }

func (g *GoogleOneTap) Callback(ctx context.Context, r *http.Request) (json.RawMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("onetap: form: %w", err)
	}
	credential := r.FormValue("credential")
	if credential == "" {
		return nil, fmt.Errorf("onetap: missing credential")
	}

	// El credential lo postea el browser, no Google: ninguna claim se usa
	// antes de verificar la firma contra el JWKS de Google.
	payload, err := g.validate(ctx, credential, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("onetap: credential rejected: %w", err)
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("onetap: credential without sub")
	}

	// Reempaquetar en el formato anidado que One Tap documenta.
	doc := map[string]any{
		"id": payload.Subject,
		"name": map[string]any{
			"givenName":  claimString(payload, "given_name"),
			"familyName": claimString(payload, "family_name"),
		},
	}
	if email := claimString(payload, "email"); email != "" {
		doc["emails"] = []map[string]any{{"value": email}}
	}
	if picture := claimString(payload, "picture"); picture != "" {
		doc["photos"] = []map[string]any{{"value": picture}}
	}
	return json.Marshal(doc)
}

func claimString(p *idtoken.Payload, key string) string {
	if v, ok := p.Claims[key].(string); ok {
		return v
	}
	return ""
}

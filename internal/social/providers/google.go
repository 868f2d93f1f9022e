package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/mercatto/authd/internal/social"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Google implements the Google authorization-code flow. The code-for-token
// exchange runs server-to-server with the client secret; the access token
// never reaches the browser.
type Google struct {
	cfg *oauth2.Config
}

func NewGoogle(clientID, clientSecret, redirectURL string, scopes []string) *Google {
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &Google{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}}
}

func (g *Google) Provider() social.Provider { return social.ProviderGoogle }

func (g *Google) AuthCodeURL(state string) string {
	return g.cfg.AuthCodeURL(state)
}

func (g *Google) Callback(ctx context.Context, r *http.Request) (json.RawMessage, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, ErrCallbackNoCode
	}
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: code exchange: %w", err)
	}

	resp, err := g.cfg.Client(ctx, tok).Get(googleUserinfoURL)
	if err != nil {
		return nil, fmt.Errorf("google: userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: userinfo status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("google: userinfo read: %w", err)
	}

	var u struct {
		ID         string `json:"id"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Email      string `json:"email"`
		Picture    string `json:"picture"`
	}
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("google: userinfo decode: %w", err)
	}

	// Reempaquetar en la forma emails[]/photos[] que espera el normalizador.
	doc := map[string]any{
		"id":          u.ID,
		"given_name":  u.GivenName,
		"family_name": u.FamilyName,
	}
	if u.Email != "" {
		doc["emails"] = []map[string]string{{"value": u.Email}}
	}
	if u.Picture != "" {
		doc["photos"] = []map[string]string{{"value": u.Picture}}
	}
	return json.Marshal(doc)
}

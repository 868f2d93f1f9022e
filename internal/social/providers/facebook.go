package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/mercatto/authd/internal/social"
)

const facebookProfileURL = "https://graph.facebook.com/v18.0/me"

// Facebook implements the Facebook OAuth2 flow against the Graph API.
type Facebook struct {
	cfg *oauth2.Config
}

func NewFacebook(clientID, clientSecret, redirectURL string, scopes []string) *Facebook {
	if len(scopes) == 0 {
		scopes = []string{"email", "public_profile"}
	}
	return &Facebook{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     facebook.Endpoint,
	}}
}

func (f *Facebook) Provider() social.Provider { return social.ProviderFacebook }

func (f *Facebook) AuthCodeURL(state string) string {
	return f.cfg.AuthCodeURL(state)
}

func (f *Facebook) Callback(ctx context.Context, r *http.Request) (json.RawMessage, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, ErrCallbackNoCode
	}
	tok, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("facebook: code exchange: %w", err)
	}

	// El Graph API ya responde en la forma que espera el normalizador
	// (picture.data.url incluida), se pasa tal cual.
	q := url.Values{"fields": {"id,first_name,last_name,email,picture"}}
	resp, err := f.cfg.Client(ctx, tok).Get(facebookProfileURL + "?" + q.Encode())
	if err != nil {
		return nil, fmt.Errorf("facebook: profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facebook: profile status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("facebook: profile read: %w", err)
	}
	return json.RawMessage(body), nil
}

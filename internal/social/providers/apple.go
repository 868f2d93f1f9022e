package providers

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/mercatto/authd/internal/social"
)

var appleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

// Apple implements Sign in with Apple. Two peculiarities drive the shape of
// this strategy:
//
//   - the client secret is not static: Apple requires an ES256 JWT signed
//     with the developer's .p8 key, so it is minted per exchange;
//   - the callback is a form_post, and the "user" form field (name/email)
//     is present only on the user's first consent.
type Apple struct {
	cfg    *oauth2.Config
	teamID string
	keyID  string
	key    *ecdsa.PrivateKey
}

func NewApple(clientID, redirectURL, teamID, keyID, keyFile string, scopes []string) (*Apple, error) {
	if len(scopes) == 0 {
		scopes = []string{"name", "email"}
	}
	key, err := loadAppleKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("apple: %w", err)
	}
	return &Apple{
		cfg: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      scopes,
			Endpoint:    appleEndpoint,
		},
		teamID: teamID,
		keyID:  keyID,
		key:    key,
	}, nil
}

func loadAppleKey(path string) (*ecdsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not ECDSA", path)
	}
	return key, nil
}

func (a *Apple) Provider() social.Provider { return social.ProviderApple }

func (a *Apple) AuthCodeURL(state string) string {
	// form_post es obligatorio cuando se piden los scopes name/email.
	return a.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "form_post"))
}

// clientSecret mints the short-lived ES256 assertion Apple expects instead
// of a static secret.
func (a *Apple) clientSecret() (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.RegisteredClaims{
		Issuer:    a.teamID,
		Subject:   a.cfg.ClientID,
		Audience:  jwtv5.ClaimStrings{"https://appleid.apple.com"},
		IssuedAt:  jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(5 * time.Minute)),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, claims)
	tk.Header["kid"] = a.keyID
	return tk.SignedString(a.key)
}

func (a *Apple) Callback(ctx context.Context, r *http.Request) (json.RawMessage, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("apple: form: %w", err)
	}
	code := r.PostFormValue("code")
	if code == "" {
		code = r.FormValue("code")
	}
	if code == "" {
		return nil, ErrCallbackNoCode
	}

	secret, err := a.clientSecret()
	if err != nil {
		return nil, fmt.Errorf("apple: client secret: %w", err)
	}
	cfg := *a.cfg
	cfg.ClientSecret = secret

	tok, err := cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("grant_type", "authorization_code"))
	if err != nil {
		return nil, fmt.Errorf("apple: code exchange: %w", err)
	}
	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, fmt.Errorf("apple: token response without id_token")
	}

	// El id_token llega directo del endpoint de Apple sobre TLS, por eso el
	// parse sin verificación de firma es suficiente acá.
	var payload struct {
		jwtv5.RegisteredClaims
		Email string `json:"email"`
	}
	if _, _, err := jwtv5.NewParser().ParseUnverified(rawIDToken, &payload); err != nil {
		return nil, fmt.Errorf("apple: id_token: %w", err)
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("apple: id_token without sub")
	}

	doc := map[string]any{"id": payload.Subject}
	if payload.Email != "" {
		doc["email"] = payload.Email
	}

	// "user" viaja solo en el primer consentimiento.
	if userJSON := formValue(r, "user"); userJSON != "" {
		var user struct {
			Name struct {
				FirstName string `json:"firstName"`
				LastName  string `json:"lastName"`
			} `json:"name"`
			Email string `json:"email"`
		}
		if err := json.Unmarshal([]byte(userJSON), &user); err == nil {
			if user.Name.FirstName != "" || user.Name.LastName != "" {
				doc["name"] = map[string]string{
					"firstName": user.Name.FirstName,
					"lastName":  user.Name.LastName,
				}
			}
			if user.Email != "" {
				doc["email"] = user.Email
			}
		}
	}
	return json.Marshal(doc)
}

func formValue(r *http.Request, key string) string {
	if v := r.PostFormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

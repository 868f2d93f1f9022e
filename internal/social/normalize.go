package social

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrProfileWithoutID = errors.New("provider profile has no id")

// Raw payload shapes, one per provider. No shared branch ever inspects field
// presence to guess the provider; the tag decides which mapping runs.

type googleProfile struct {
	ID         string `json:"id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Emails     []struct {
		Value string `json:"value"`
	} `json:"emails"`
	Photos []struct {
		Value string `json:"value"`
	} `json:"photos"`
}

// googleOneTapProfile is the same provider family with name fields nested
// under "name". Detected by the provider tag alone.
type googleOneTapProfile struct {
	ID   string `json:"id"`
	Name struct {
		GivenName  string `json:"givenName"`
		FamilyName string `json:"familyName"`
	} `json:"name"`
	Emails []struct {
		Value string `json:"value"`
	} `json:"emails"`
	Photos []struct {
		Value string `json:"value"`
	} `json:"photos"`
}

type facebookProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Picture   struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type appleProfile struct {
	ID   string `json:"id"`
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

// Normalize maps a raw provider payload into the canonical SocialAuthData.
// Dispatch is strictly by provider tag.
func Normalize(provider Provider, raw json.RawMessage) (SocialAuthData, error) {
	switch provider {
	case ProviderGoogle:
		return normalizeGoogle(raw)
	case ProviderGoogleOneTap:
		return normalizeGoogleOneTap(raw)
	case ProviderFacebook:
		return normalizeFacebook(raw)
	case ProviderApple:
		return normalizeApple(raw)
	default:
		return SocialAuthData{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

func normalizeGoogle(raw json.RawMessage) (SocialAuthData, error) {
	var p googleProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return SocialAuthData{}, fmt.Errorf("google: %w", err)
	}
	if p.ID == "" {
		return SocialAuthData{}, fmt.Errorf("google: %w", ErrProfileWithoutID)
	}
	d := SocialAuthData{
		Provider:    ProviderGoogle,
		ID:          p.ID,
		Firstname:   p.GivenName,
		Lastname:    p.FamilyName,
		DisplayName: displayName(p.GivenName, p.FamilyName),
	}
	if len(p.Emails) > 0 {
		d.Email = strings.ToLower(p.Emails[0].Value)
	}
	if len(p.Photos) > 0 {
		d.Photo = p.Photos[0].Value
	}
	return d, nil
}

func normalizeGoogleOneTap(raw json.RawMessage) (SocialAuthData, error) {
	var p googleOneTapProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return SocialAuthData{}, fmt.Errorf("google-one-tap: %w", err)
	}
	if p.ID == "" {
		return SocialAuthData{}, fmt.Errorf("google-one-tap: %w", ErrProfileWithoutID)
	}
	d := SocialAuthData{
		Provider:    ProviderGoogleOneTap,
		ID:          p.ID,
		Firstname:   p.Name.GivenName,
		Lastname:    p.Name.FamilyName,
		DisplayName: displayName(p.Name.GivenName, p.Name.FamilyName),
	}
	if len(p.Emails) > 0 {
		d.Email = strings.ToLower(p.Emails[0].Value)
	}
	if len(p.Photos) > 0 {
		d.Photo = p.Photos[0].Value
	}
	return d, nil
}

func normalizeFacebook(raw json.RawMessage) (SocialAuthData, error) {
	var p facebookProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return SocialAuthData{}, fmt.Errorf("facebook: %w", err)
	}
	if p.ID == "" {
		return SocialAuthData{}, fmt.Errorf("facebook: %w", ErrProfileWithoutID)
	}
	d := SocialAuthData{
		Provider:    ProviderFacebook,
		ID:          p.ID,
		Firstname:   p.FirstName,
		Lastname:    p.LastName,
		DisplayName: displayName(p.FirstName, p.LastName),
		Photo:       p.Picture.Data.URL,
	}
	if p.Email != "" {
		d.Email = strings.ToLower(p.Email)
	} else {
		// Facebook puede retener el email según la configuración del usuario.
		// Se usa el id numérico como pseudo-email para que el lookup
		// combinado siga funcionando.
		d.Email = p.ID + "@facebook.local"
	}
	return d, nil
}

func normalizeApple(raw json.RawMessage) (SocialAuthData, error) {
	var p appleProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return SocialAuthData{}, fmt.Errorf("apple: %w", err)
	}
	if p.ID == "" {
		return SocialAuthData{}, fmt.Errorf("apple: %w", ErrProfileWithoutID)
	}
	// Apple garantiza solo el id. Nombre y email llegan solo en el primer
	// consentimiento; cuando faltan quedan vacíos, nunca se fabrican.
	return SocialAuthData{
		Provider:    ProviderApple,
		ID:          p.ID,
		Firstname:   p.Name.FirstName,
		Lastname:    p.Name.LastName,
		DisplayName: displayName(p.Name.FirstName, p.Name.LastName),
		Email:       strings.ToLower(p.Email),
	}, nil
}

func displayName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

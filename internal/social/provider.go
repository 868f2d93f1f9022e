// Package social implements the social-identity layer: provider profile
// normalization, the sign-in/link/unlink reconciliation state machine and
// the redirect-state protocol that survives the OAuth round trip.
package social

import "errors"

// Provider is the tagged set of supported identity providers. One Tap is a
// separate tag of the Google family because its payload nests the same
// fields differently. Dispatch is always by tag, never by field sniffing.
type Provider string

const (
	ProviderGoogle       Provider = "google"
	ProviderGoogleOneTap Provider = "google-one-tap"
	ProviderFacebook     Provider = "facebook"
	ProviderApple        Provider = "apple"
)

// Valid reporta si el tag es un provider soportado.
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderGoogleOneTap, ProviderFacebook, ProviderApple:
		return true
	}
	return false
}

// Storage devuelve el nombre bajo el cual se persiste el link. One Tap y el
// flujo web de Google comparten el mismo subject id, así que comparten link.
func (p Provider) Storage() string {
	if p == ProviderGoogleOneTap {
		return string(ProviderGoogle)
	}
	return string(p)
}

var ErrUnknownProvider = errors.New("unknown provider")

// SocialAuthData is the canonical profile shape every provider payload is
// normalized into before touching the reconciler.
type SocialAuthData struct {
	Provider    Provider `json:"provider"`
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName,omitempty"`
	Firstname   string   `json:"firstname,omitempty"`
	Lastname    string   `json:"lastname,omitempty"`
	Email       string   `json:"email,omitempty"`
	Photo       string   `json:"photo,omitempty"`
}

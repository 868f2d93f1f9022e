package social

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Intent is the client-declared purpose of an OAuth round trip.
type Intent string

const (
	IntentSignin  Intent = "signin"
	IntentLinking Intent = "linking"
)

// QueryParam es un par key/value que el cliente quiere de vuelta en el
// deep link final.
type QueryParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RedirectState carries the client's intent opaquely through the provider
// round trip. It is constructed client-side, serialized with Encode, passes
// untouched through the provider and is decoded exactly once at the callback
// boundary. Treat the decoded value as immutable.
type RedirectState struct {
	Scheme          string       `json:"scheme"`
	Host            string       `json:"host,omitempty"`
	Screens         []string     `json:"screens"`
	Intent          Intent       `json:"intent"`
	FallbackScreens []string     `json:"fallbackScreens,omitempty"`
	Query           []QueryParam `json:"query,omitempty"`
	// IdentityID is required when Intent is linking: the already
	// authenticated caller that the new provider will be attached to.
	IdentityID string `json:"identityId,omitempty"`
}

var (
	ErrStateInvalid    = errors.New("invalid redirect state")
	ErrStateNoIdentity = errors.New("linking state requires identityId")
)

// Encode serializa el estado al formato de wire: base64url(JSON). El mismo
// formato que arma el cliente. Decode es su inverso exacto.
func Encode(s RedirectState) (string, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode parsea el formato de wire a un estado tipado, validando en el borde.
func Decode(opaque string) (RedirectState, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(opaque))
	if err != nil {
		return RedirectState{}, fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}
	var s RedirectState
	if err := json.Unmarshal(b, &s); err != nil {
		return RedirectState{}, fmt.Errorf("%w: %v", ErrStateInvalid, err)
	}
	if err := validate(s); err != nil {
		return RedirectState{}, err
	}
	return s, nil
}

func validate(s RedirectState) error {
	if s.Scheme == "" || len(s.Screens) == 0 {
		return ErrStateInvalid
	}
	if s.Intent != IntentSignin && s.Intent != IntentLinking {
		return ErrStateInvalid
	}
	if s.Intent == IntentLinking && s.IdentityID == "" {
		return ErrStateNoIdentity
	}
	return nil
}

// Render builds the final deep-link redirect URL. It is a pure function of
// (intent, result status):
//
//	signin  200      -> {token} on primary screens
//	signin  404      -> raw profile on fallback screens
//	signin  400/403  -> {error} on primary screens
//	linking 200      -> primary screens, no payload
//	linking 400/404  -> {error} on primary screens
func Render(s RedirectState, res Result, rawProfile *SocialAuthData) string {
	screens := s.Screens
	var payload any

	switch {
	case s.Intent == IntentSignin && res.Status == StatusOK:
		payload = map[string]string{"token": res.Token}
	case s.Intent == IntentSignin && res.Status == StatusNotFound:
		screens = s.FallbackScreens
		payload = rawProfile
	case s.Intent == IntentLinking && res.Status == StatusOK:
		payload = nil
	default:
		payload = map[string]string{"error": res.Message}
	}

	var b strings.Builder
	b.WriteString(s.Scheme)
	b.WriteString("://")
	if s.Host != "" {
		b.WriteString(s.Host)
		b.WriteString("/")
	}
	b.WriteString(strings.Join(screens, "/"))

	sep := "?"
	if payload != nil {
		data, _ := json.Marshal(payload)
		b.WriteString(sep)
		b.WriteString("data=")
		b.WriteString(url.QueryEscape(string(data)))
		sep = "&"
	}
	for _, q := range s.Query {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(q.Key))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(q.Value))
		sep = "&"
	}
	return b.String()
}

// Package jwt implements per-realm token issuance and parsing.
//
// Each realm (admin, customer) owns an Issuer with its own HMAC secret and
// TTL. Tokens carry only {identity id, issued at}: there is no server-side
// revocation list. A token dies implicitly when the identity is disabled or
// (customer realm) logged out, both enforced by the guard at resolve time.
package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims son los claims que viajan en el token de un realm.
type Claims struct {
	IdentityID string
	IssuedAt   time.Time
}

// Issuer firma y valida tokens de un realm.
type Issuer struct {
	secret []byte
	iss    string
	ttl    time.Duration
}

func NewIssuer(secret, iss string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), iss: iss, ttl: ttl}
}

// Sign emite un token firmado para la identidad.
func (i *Issuer) Sign(identityID string) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.RegisteredClaims{
		Issuer:    i.iss,
		Subject:   identityID,
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(i.ttl)),
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse valida un token y extrae sus claims.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	var rc jwtv5.RegisteredClaims
	tk, err := jwtv5.ParseWithClaims(raw, &rc, func(t *jwtv5.Token) (any, error) {
		return i.secret, nil
	},
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.iss),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tk.Valid || rc.Subject == "" {
		return nil, ErrTokenInvalid
	}
	var iat time.Time
	if rc.IssuedAt != nil {
		iat = rc.IssuedAt.Time
	}
	return &Claims{IdentityID: rc.Subject, IssuedAt: iat}, nil
}

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the access token claims issued by the identity provider. Subject
// carries the user id; Role is one of the clinic roles.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified (user id, role) pair extracted from a token.
type Principal struct {
	Subject string
	Role    string
}

type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier verifies HS256 tokens signed with secret. An empty issuer skips
// the iss check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

func (v *Verifier) Verify(raw string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	sub := strings.TrimSpace(claims.Subject)
	role := strings.TrimSpace(claims.Role)
	if sub == "" || role == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{Subject: sub, Role: role}, nil
}

// SignHS256 mints a token; used by tests and the local dev tooling.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

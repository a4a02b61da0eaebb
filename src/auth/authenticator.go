package auth

import (
	"strings"

	"github.com/google/uuid"
)

// Credentials are the identity headers of a STOMP CONNECT frame.
type Credentials struct {
	Login         string
	Passcode      string
	Authorization string
}

// Principal is the authenticated owner of a broker session.
type Principal struct {
	UserID string
	Role   string
}

// Authenticator decides whether a CONNECT is accepted.
type Authenticator interface {
	Authenticate(creds Credentials) (Principal, error)
}

// JWTAuthenticator accepts HS256 tokens from the passcode header or an
// "Authorization: Bearer" header.
type JWTAuthenticator struct {
	secret string
}

func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

func (a *JWTAuthenticator) Authenticate(creds Credentials) (Principal, error) {
	token := creds.Passcode
	if bearer, ok := strings.CutPrefix(creds.Authorization, "Bearer "); ok {
		token = strings.TrimSpace(bearer)
	}
	if token == "" {
		return Principal{}, ErrMissingToken
	}
	claims, err := ValidateToken(a.secret, token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

// AnonymousAuthenticator trusts the login header and falls back to a
// random id. Used when no secret is configured.
type AnonymousAuthenticator struct{}

func (AnonymousAuthenticator) Authenticate(creds Credentials) (Principal, error) {
	if creds.Login != "" {
		return Principal{UserID: creds.Login}, nil
	}
	return Principal{UserID: uuid.NewString()}, nil
}

// New returns a JWT authenticator when secret is set, otherwise an
// anonymous one.
func New(secret string) Authenticator {
	if secret == "" {
		return AnonymousAuthenticator{}
	}
	return NewJWTAuthenticator(secret)
}

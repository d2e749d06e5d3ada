package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IssuerName is stamped as the iss claim of every token.
const IssuerName = "logship-collector"

var (
	// ErrUnknownClient is returned by Issue for an unregistered client or a
	// wrong secret.
	ErrUnknownClient = errors.New("auth: unknown client or bad secret")

	// ErrInvalidToken is returned by Verify for any token it does not accept.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Issuer signs and verifies tokens with a shared HMAC key.
type Issuer struct {
	key     []byte
	lease   time.Duration
	clients map[string]string
	now     func() time.Time // injectable for deterministic tests
}

// NewIssuer returns an Issuer. clients maps client ID to secret; an empty map
// accepts any client ID, and an empty secret accepts any secret for that ID.
func NewIssuer(key []byte, lease time.Duration, clients map[string]string) *Issuer {
	return &Issuer{
		key:     key,
		lease:   lease,
		clients: clients,
		now:     time.Now,
	}
}

// Lease returns the lifetime of issued tokens.
func (i *Issuer) Lease() time.Duration { return i.lease }

// Issue authenticates clientID and returns a signed token and its expiry.
func (i *Issuer) Issue(clientID, secret string) (string, time.Time, error) {
	if clientID == "" {
		return "", time.Time{}, ErrUnknownClient
	}
	if len(i.clients) > 0 {
		want, ok := i.clients[clientID]
		if !ok {
			return "", time.Time{}, ErrUnknownClient
		}
		if want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(secret)) != 1 {
			return "", time.Time{}, ErrUnknownClient
		}
	}

	now := i.now()
	exp := now.Add(i.lease)
	claims := jwt.RegisteredClaims{
		Issuer:    IssuerName,
		Subject:   clientID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses token and returns its claims. Expired, foreign or malformed
// tokens wrap ErrInvalidToken.
func (i *Issuer) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(IssuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

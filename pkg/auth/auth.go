// Package auth parses the bearer tokens presented by calling packages.
//
// The token subject is the calling package name and the permissions claim
// carries the health permissions granted to it.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims identifies a calling package and what it was granted.
type Claims struct {
	Package     string
	Permissions []string
	ExpiresAt   time.Time
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

type tokenClaims struct {
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Parse verifies an HS256 token against cfg.
func Parse(raw string, cfg Config) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return &Claims{
		Package:     tc.Subject,
		Permissions: normalize(tc.Permissions),
		ExpiresAt:   tc.ExpiresAt.Time,
	}, nil
}

// Issue signs a token for pkg holding permissions, valid for ttl.
func Issue(cfg Config, pkg string, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	tc := tokenClaims{
		Permissions: normalize(permissions),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pkg,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString([]byte(cfg.Secret))
}

// normalize sorts permissions and drops blanks and duplicates.
func normalize(perms []string) []string {
	out := slices.DeleteFunc(slices.Clone(perms), func(p string) bool { return strings.TrimSpace(p) == "" })
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports whether perm was granted.
func (c *Claims) Has(perm string) bool {
	return c != nil && slices.Contains(c.Permissions, perm)
}

// README: JWT issue/verify for identity-service bearer tokens (member id + role).
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fret/internal/types"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service validates tokens minted by the identity service. The core
// trusts the role claim; it never reads member records itself.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Issue is used by tests and local tooling; production tokens come from
// the identity service signed with the same shared secret.
func (s *Service) Issue(memberID types.ID, role types.Role) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(memberID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) Verify(token string) (types.Actor, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return types.Actor{}, ErrInvalidToken
	}
	actor := types.Actor{ID: types.ID(claims.Subject), Role: types.Role(claims.Role)}
	if actor.ID == "" || !actor.Role.Valid() {
		return types.Actor{}, ErrInvalidToken
	}
	return actor, nil
}

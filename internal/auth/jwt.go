package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ThreadClaims are the JWT claims for thread-scoped stream tokens. The
// preview panel in the browser holds one of these instead of the org API
// key, so a leaked token only exposes a single thread.
type ThreadClaims struct {
	jwt.RegisteredClaims
	OrgID    uuid.UUID `json:"org_id"`
	ThreadID string    `json:"thread_id"`
}

// JWTIssuer creates thread-scoped JWTs.
type JWTIssuer struct {
	secret []byte
}

// NewJWTIssuer creates a new JWT issuer with the given shared secret.
func NewJWTIssuer(secret string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret)}
}

// IssueThreadToken creates a JWT granting stream access to one thread.
func (j *JWTIssuer) IssueThreadToken(orgID uuid.UUID, threadID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ThreadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   orgID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "openpreview",
		},
		OrgID:    orgID,
		ThreadID: threadID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateThreadToken parses and validates a thread-scoped JWT.
func (j *JWTIssuer) ValidateThreadToken(tokenStr string) (*ThreadClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ThreadClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*ThreadClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

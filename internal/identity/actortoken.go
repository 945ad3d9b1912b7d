package identity

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/custodia-io/custodia/internal/hashchain"
)

// ActorClaims are the JWT claims for a Custodia actor session token. The
// actor ID in the subject is what ends up in custody ledger entries, so a
// token is the only way a request gains a ledger identity.
type ActorClaims struct {
	jwt.RegisteredClaims
	ActorID     string `json:"actor_id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Type        string `json:"type"` // "actor" or "system"
}

// UUID returns the actor ID parsed as a UUID.
func (c *ActorClaims) UUID() (uuid.UUID, error) {
	return uuid.Parse(c.ActorID)
}

// ActorTokenIssuer issues and verifies actor session JWTs using the service
// RSA signing key.
type ActorTokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
}

// NewActorTokenIssuer creates an ActorTokenIssuer.
//
//	issuerURL — The "iss" claim value; matches the service's base URL.
//	ttl       — Token lifetime (default: 8 hours).
func NewActorTokenIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *ActorTokenIssuer {
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &ActorTokenIssuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuerURL,
		ttl:    ttl,
	}
}

// Issue creates a signed session token for a human actor.
func (a *ActorTokenIssuer) Issue(actorID uuid.UUID, displayName, role string) (string, error) {
	now := time.Now().UTC()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   actorID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.New().String(),
		},
		ActorID:     actorID.String(),
		DisplayName: displayName,
		Role:        role,
		Type:        "actor",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign actor token: %w", err)
	}
	return signed, nil
}

// IssueSystemToken creates a signed token for automated jobs such as the
// integrity sweeper. Ledger entries produced under it carry the system actor.
func (a *ActorTokenIssuer) IssueSystemToken(ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   hashchain.SystemActor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		ActorID: hashchain.SystemActor,
		Type:    "system",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign system token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (a *ActorTokenIssuer) Verify(tokenStr string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&ActorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return a.pub, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify actor token: %w", err)
	}
	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid actor token claims")
	}
	if claims.Type != "actor" && claims.Type != "system" {
		return nil, fmt.Errorf("not an actor session token")
	}
	return claims, nil
}

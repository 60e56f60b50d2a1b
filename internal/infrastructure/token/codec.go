// Package token implements the signed approval-link token codec on top of
// HMAC JWTs. A token authorizes exactly one decision on exactly one trip and
// expires after the configured validity window.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
)

// Codec issues and verifies approval tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec creates a codec signing with the given secret. ttl is the
// validity window measured from issuance.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl}
}

type approvalClaims struct {
	TripID  string `json:"trip_id"`
	Action  string `json:"action"`
	Manager string `json:"manager,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a token authorizing one decision on one trip.
func (c *Codec) Issue(tripID string, action entity.DecisionAction, manager string, issuedAt time.Time) (string, error) {
	if !action.IsValid() {
		return "", fmt.Errorf("issue token: unknown action %q", action)
	}

	claims := approvalClaims{
		TripID:  tripID,
		Action:  string(action),
		Manager: manager,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tripID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign approval token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. For a well-signed but expired token
// the decoded claims are returned alongside port.ErrTokenExpired, so the
// caller can still identify the trip behind the stale link.
func (c *Codec) Verify(raw string) (*port.ApprovalToken, error) {
	parsed, err := jwt.ParseWithClaims(raw, &approvalClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && parsed != nil {
			if claims, ok := parsed.Claims.(*approvalClaims); ok {
				return decoded(claims), port.ErrTokenExpired
			}
		}
		return nil, fmt.Errorf("%w: %v", port.ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*approvalClaims)
	if !ok || !parsed.Valid {
		return nil, port.ErrTokenInvalid
	}
	if claims.TripID == "" || !entity.DecisionAction(claims.Action).IsValid() {
		return nil, port.ErrTokenInvalid
	}

	return decoded(claims), nil
}

func decoded(claims *approvalClaims) *port.ApprovalToken {
	tok := &port.ApprovalToken{
		TripID:  claims.TripID,
		Action:  entity.DecisionAction(claims.Action),
		Manager: claims.Manager,
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	return tok
}

// Verify interface compliance
var _ port.TokenCodec = (*Codec)(nil)

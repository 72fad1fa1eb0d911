// Package auth verifies caller identity tokens for the HTTP surface.
package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
)

// Principal is the authenticated caller: the org the request acts on and the
// user driving it.
type Principal struct {
	OrgID  int64
	UserID int64
}

// Verifier checks HMAC-signed bearer tokens issued by the platform.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a verifier over the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type platformClaims struct {
	OrgID int64 `json:"org_id"`
}

// Verify parses and validates the token, returning the caller principal.
func (v *Verifier) Verify(token string) (*Principal, error) {
	parsed, err := gojwt.ParseSigned(strings.TrimSpace(token), []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: parse token", domain.ErrUnauthorized)
	}

	var std gojwt.Claims
	var custom platformClaims
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: verify signature", domain.ErrUnauthorized)
	}
	if err := std.Validate(gojwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("%w: validate claims", domain.ErrUnauthorized)
	}
	if custom.OrgID == 0 {
		return nil, fmt.Errorf("%w: org claim missing", domain.ErrUnauthorized)
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject claim", domain.ErrUnauthorized)
	}

	return &Principal{OrgID: custom.OrgID, UserID: userID}, nil
}

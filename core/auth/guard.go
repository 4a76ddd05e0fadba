package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/trezcool/portal/core"
)

// RejectionReason tells why a request was rejected. It is meant for logs & metrics only:
// callers must answer every rejection the same way.
type RejectionReason int

const (
	ReasonNone RejectionReason = iota
	ReasonMissingToken
	ReasonInvalidToken
	ReasonBlacklisted
	ReasonStoreFailure
)

func (r RejectionReason) String() string {
	switch r {
	case ReasonNone:
		return "accepted"
	case ReasonMissingToken:
		return "missing_token"
	case ReasonInvalidToken:
		return "invalid_token"
	case ReasonBlacklisted:
		return "blacklisted"
	case ReasonStoreFailure:
		return "store_failure"
	}
	return "unknown"
}

// Result is the outcome of Guard.VerifyAuth: accepted with claims, or rejected.
type Result struct {
	claims *Claims
	reason RejectionReason
}

func accepted(claims *Claims) Result        { return Result{claims: claims} }
func rejected(reason RejectionReason) Result { return Result{reason: reason} }

func (r Result) Accepted() bool { return r.claims != nil }

// Claims returns the verified claims, nil when rejected.
func (r Result) Claims() *Claims { return r.claims }

func (r Result) Reason() RejectionReason { return r.reason }

const bearerScheme = "bearer"

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>" header.
// The scheme is case-insensitive.
func ExtractBearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) {
		return "", false
	}
	return parts[1], true
}

// Guard composes token verification & the blacklist check.
// Rate limiting runs before it, in the HTTP layer.
type Guard struct {
	verifier  Verifier
	blacklist *Blacklist
	log       core.Logger
}

func NewGuard(verifier Verifier, blacklist *Blacklist, logger core.Logger) *Guard {
	return &Guard{verifier: verifier, blacklist: blacklist, log: logger}
}

// VerifyAuth authenticates the Authorization header of a request.
// Any failure, including blacklist store errors and panics, rejects.
func (g *Guard) VerifyAuth(ctx context.Context, authorization string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("auth guard panic", fmt.Errorf("%v", r))
			res = rejected(ReasonStoreFailure)
		}
		authResults.WithLabelValues(res.reason.String()).Inc()
	}()

	token, ok := ExtractBearerToken(authorization)
	if !ok {
		return rejected(ReasonMissingToken)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil || claims == nil {
		return rejected(ReasonInvalidToken)
	}

	if claims.ID == "" {
		return accepted(claims)
	}

	listed, err := g.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		g.log.Error("auth guard: blacklist unavailable", err, claims.Person())
		return rejected(ReasonStoreFailure)
	}
	if listed {
		return rejected(ReasonBlacklisted)
	}
	return accepted(claims)
}

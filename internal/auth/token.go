package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

const BearerPrefix = "Bearer "

// TokenAuthEngine accepts requests carrying one of a fixed set of bearer
// tokens.
type TokenAuthEngine struct {
	tokens []string
}

// NewTokenAuthEngine creates a TokenAuthEngine for tokens. Empty tokens are
// ignored.
func NewTokenAuthEngine(tokens ...string) *TokenAuthEngine {
	e := &TokenAuthEngine{}
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			e.tokens = append(e.tokens, token)
		}
	}
	return e
}

// AuthenticateRequest checks the Authorization header for a known bearer
// token.
func (e *TokenAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	header := r.Header.Get("Authorization")
	if len(header) <= len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return nil, nil
	}

	presented := strings.TrimSpace(header[len(BearerPrefix):])
	for i, token := range e.tokens {
		if equal(presented, token) {
			return &User{Name: "token-" + strconv.Itoa(i+1)}, nil
		}
	}

	return nil, nil
}

package auth

import (
	"context"
	"net/http"
)

// User is the identity a request was authenticated as.
type User struct {
	Name string
}

type AuthEngine interface {

	// AuthenticateRequest inspects the given HTTP request for valid
	// credentials. If valid, it returns the authenticated User; otherwise,
	// it returns nil. An error is returned if there was an issue processing
	// the authentication.
	AuthenticateRequest(ctx context.Context, rq *http.Request) (*User, error)
}

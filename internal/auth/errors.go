package auth

import "errors"

var (
	// ErrUnauthenticated indicates a missing, malformed or invalid credential.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden indicates a valid identity with insufficient role or tenant access.
	ErrForbidden = errors.New("auth: forbidden")
)

package alerts

import "errors"

var (
	// ErrNotFound indicates an alert absent from the caller's tenant. Foreign
	// and missing rows are deliberately indistinguishable.
	ErrNotFound = errors.New("alert: not found")
	// ErrInvalidAction indicates an unrecognized or inapplicable action token.
	ErrInvalidAction = errors.New("alert: invalid action")
)

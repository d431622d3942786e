package rdsiamauth

import (
	"errors"
	"fmt"
)

// ErrSigningFailed matches any error produced because the signing authority
// could not issue a token. Use errors.Is to tell it apart from validation
// errors and from failures of the connection itself.
var ErrSigningFailed = errors.New("rdsiamauth: token signing failed")

// SigningError reports a failed signing call for one key. Failed calls are
// never cached.
type SigningError struct {
	Key CacheKey
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("rdsiamauth: token signing failed for %s: %v", e.Key, e.Err)
}

func (e *SigningError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSigningFailed.
func (e *SigningError) Is(target error) bool { return target == ErrSigningFailed }

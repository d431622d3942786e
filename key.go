package rdsiamauth

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidTarget is returned when a connection target cannot be turned
// into a [CacheKey]. It is reported before any cache or network access.
var ErrInvalidTarget = errors.New("rdsiamauth: invalid connection target")

// CacheKey identifies one logical credential stream. It is comparable and
// is used directly as a map key.
type CacheKey struct {
	User   string
	Host   string
	Port   int
	Region string
}

// BuildKey normalizes a connection target into a [CacheKey]. Hostnames are
// case-insensitive, so the host is lower-cased; the user is kept verbatim
// because database user names are case-sensitive.
func BuildKey(user, host string, port int, region string) (CacheKey, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	region = strings.TrimSpace(region)

	switch {
	case user == "":
		return CacheKey{}, fmt.Errorf("%w: user must not be empty", ErrInvalidTarget)
	case host == "":
		return CacheKey{}, fmt.Errorf("%w: host must not be empty", ErrInvalidTarget)
	case port < 1 || port > 65535:
		return CacheKey{}, fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, port)
	case region == "":
		return CacheKey{}, fmt.Errorf("%w: region must not be empty", ErrInvalidTarget)
	case hasControl(user), hasControl(host), hasControl(region):
		return CacheKey{}, fmt.Errorf("%w: control characters are not allowed", ErrInvalidTarget)
	}

	return CacheKey{User: user, Host: host, Port: port, Region: region}, nil
}

// Endpoint returns the host:port pair the token is signed for.
func (k CacheKey) Endpoint() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
}

// String renders the key for logs. It never contains secrets.
func (k CacheKey) String() string {
	return k.User + "@" + k.Endpoint() + " (" + k.Region + ")"
}

func hasControl(s string) bool {
	return strings.ContainsFunc(s, unicode.IsControl)
}

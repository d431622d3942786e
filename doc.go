// Package rdsiamauth supplies AWS SigV4 IAM authentication tokens for
// Amazon RDS and Aurora database connections, and caches them so that a
// connection pool does not sign a new token for every connection it opens.
//
// The token is a presigned "connect" URL (with the scheme prefix stripped)
// that is passed as the database password. The database verifies it
// against IAM; no static password is stored anywhere.
//
// Create an [Auth] with [New] and ask it for a token whenever a physical
// connection is opened:
//
//	auth, err := rdsiamauth.New(ctx, rdsiamauth.WithRegion("eu-west-1"))
//	token, err := auth.GenerateAuthToken(ctx, "app", host, 5432, "")
//
// The pgxauth, mysqlauth and sqlauth packages wire this into the connect
// hooks of the respective drivers.
//
// Key constraints:
//   - Tokens are valid for 15 minutes. They are cached for 10 minutes by
//     default ([DefaultCacheTimeout]); a cache timeout of 0 signs a new
//     token on every call.
//   - Tokens are cached per (user, host, port, region). Concurrent callers
//     asking for the same stale key share a single signing call.
//   - Signing failures are never cached and are reported as errors matching
//     [ErrSigningFailed]. No retry happens inside this package.
//   - TLS is mandatory for IAM-authenticated connections.
package rdsiamauth

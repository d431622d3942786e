package rdsiamauth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	smithycreds "github.com/aws/smithy-go/aws-http-auth/credentials"
	"github.com/aws/smithy-go/aws-http-auth/sigv4"
	v4 "github.com/aws/smithy-go/aws-http-auth/v4"
)

// signingName is the SigV4 service name for RDS IAM database authentication.
const signingName = "rds-db"

// DefaultTokenLifetime is the validity window the signing authority grants
// an RDS IAM token. It is also the largest value accepted for X-Amz-Expires.
const DefaultTokenLifetime = 15 * time.Minute

// emptyPayloadHash is the SHA-256 hash of the empty string, precomputed.
var emptyPayloadHash = sha256.Sum256(nil)

// Signer produces a signed authentication token for a [CacheKey]. It may
// block on network I/O while credentials are resolved.
type Signer interface {
	Sign(ctx context.Context, key CacheKey) (string, error)
}

// SignerFunc adapts an ordinary function to the [Signer] interface.
type SignerFunc func(ctx context.Context, key CacheKey) (string, error)

// Sign calls f(ctx, key).
func (f SignerFunc) Sign(ctx context.Context, key CacheKey) (string, error) {
	return f(ctx, key)
}

// TokenSigner presigns RDS "connect" requests with SigV4. It is safe for
// concurrent use after construction.
type TokenSigner struct {
	credProvider aws.CredentialsProvider
}

// NewTokenSigner creates a [TokenSigner] that reads credentials from
// provider on every Sign call, so rotation is handled by the provider.
func NewTokenSigner(provider aws.CredentialsProvider) (*TokenSigner, error) {
	if provider == nil {
		return nil, errors.New("rdsiamauth: credentials provider must not be nil")
	}

	return &TokenSigner{credProvider: provider}, nil
}

// Sign generates a freshly signed token for key. The result is the
// presigned URL with the scheme prefix stripped, suitable for use as the
// database password.
//
// ctx bounds credential retrieval; signing itself is local and CPU-only.
func (s *TokenSigner) Sign(ctx context.Context, key CacheKey) (string, error) {
	awsCreds, err := s.credProvider.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("rdsiamauth: credential retrieval failed: %w", err)
	}

	// The smithy-go signer uses its own credential type, not the SDK v2 type.
	creds := smithycreds.Credentials{
		AccessKeyID:     awsCreds.AccessKeyID,
		SecretAccessKey: awsCreds.SecretAccessKey,
		SessionToken:    awsCreds.SessionToken,
	}

	// X-Amz-Expires must be set before signing so it is included in the
	// signed query string.
	query := url.Values{}
	query.Set("Action", "connect")
	query.Set("DBUser", key.User)
	query.Set("X-Amz-Expires", strconv.FormatInt(int64(DefaultTokenLifetime/time.Second), 10))

	reqURL := fmt.Sprintf("http://%s/?%s", key.Endpoint(), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("rdsiamauth: failed to build signing request: %w", err)
	}

	signer := sigv4.New()
	if err := signer.SignRequest(&sigv4.SignRequestInput{
		Request:       req,
		PayloadHash:   emptyPayloadHash[:],
		Credentials:   creds,
		Service:       signingName,
		Region:        key.Region,
		Time:          time.Now(),
		SignatureType: v4.SignatureTypeQueryString,
	}); err != nil {
		return "", fmt.Errorf("rdsiamauth: signing failed: %w", err)
	}

	return strings.TrimPrefix(req.URL.String(), "http://"), nil
}

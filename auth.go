package rdsiamauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/hashicorp/go-hclog"
)

// authConfig holds all configuration for an [Auth].
type authConfig struct {
	region       string
	cacheTimeout time.Duration
	credProvider aws.CredentialsProvider
	awsCfg       *aws.Config
	signer       Signer
	logger       hclog.Logger
	metrics      Metrics
}

// Option configures an [Auth] using the functional options pattern.
type Option func(*authConfig) error

// WithRegion fixes the region used to sign tokens. Without it the region is
// taken from the RDS hostname, then from the AWS configuration.
func WithRegion(region string) Option {
	return func(cfg *authConfig) error {
		if region == "" {
			return errors.New("rdsiamauth: region must not be empty")
		}
		cfg.region = region
		return nil
	}
}

// WithCacheTimeout sets how long a signed token is reused. Zero disables
// caching. The default is [DefaultCacheTimeout].
func WithCacheTimeout(d time.Duration) Option {
	return func(cfg *authConfig) error {
		if d < 0 {
			return fmt.Errorf("rdsiamauth: cache timeout must be 0 or positive, got %s", d)
		}
		cfg.cacheTimeout = d
		return nil
	}
}

// WithCredentials sets the credentials provider used for signing.
func WithCredentials(provider aws.CredentialsProvider) Option {
	return func(cfg *authConfig) error {
		if provider == nil {
			return errors.New("rdsiamauth: credentials provider must not be nil")
		}
		cfg.credProvider = provider
		return nil
	}
}

// WithStaticCredentials signs with a fixed access key, e.g. for local
// development against a tunnel.
func WithStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) Option {
	return func(cfg *authConfig) error {
		if accessKeyID == "" || secretAccessKey == "" {
			return errors.New("rdsiamauth: static credentials need an access key ID and secret")
		}
		cfg.credProvider = credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
		return nil
	}
}

// WithAWSConfig uses an already loaded aws.Config. Its Credentials are
// used unless [WithCredentials] is also given, and its Region is the last
// fallback for region resolution.
func WithAWSConfig(awsCfg aws.Config) Option {
	return func(cfg *authConfig) error {
		cfg.awsCfg = &awsCfg
		return nil
	}
}

// WithSigner replaces the SigV4 [TokenSigner]. Credentials options are
// ignored when a signer is supplied.
func WithSigner(s Signer) Option {
	return func(cfg *authConfig) error {
		if s == nil {
			return errors.New("rdsiamauth: signer must not be nil")
		}
		cfg.signer = s
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(cfg *authConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithMetrics reports token cache events to m.
func WithMetrics(m Metrics) Option {
	return func(cfg *authConfig) error {
		cfg.metrics = m
		return nil
	}
}

// Auth supplies cached RDS IAM authentication tokens. It is safe for
// concurrent use and is usually shared by every connection pool of a
// process.
type Auth struct {
	region        string
	defaultRegion string
	signer        Signer
	cache         *TokenCache
	logger        hclog.Logger
}

// New creates an [Auth]. When neither credentials nor an aws.Config are
// supplied, the default AWS configuration is loaded: environment variables,
// then the shared config and credentials files, then container or instance
// roles.
func New(ctx context.Context, opts ...Option) (*Auth, error) {
	cfg := authConfig{
		cacheTimeout: DefaultCacheTimeout,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("rdsiamauth")

	a := &Auth{
		region: cfg.region,
		logger: logger,
	}

	if cfg.awsCfg == nil && cfg.credProvider == nil && cfg.signer == nil {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.region != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("rdsiamauth: loading AWS configuration: %w", err)
		}
		cfg.awsCfg = &awsCfg
	}
	if cfg.awsCfg != nil {
		a.defaultRegion = cfg.awsCfg.Region
		if cfg.credProvider == nil {
			cfg.credProvider = cfg.awsCfg.Credentials
		}
	}

	a.signer = cfg.signer
	if a.signer == nil {
		signer, err := NewTokenSigner(cfg.credProvider)
		if err != nil {
			return nil, err
		}
		a.signer = signer
	}

	cache, err := NewTokenCache(cfg.cacheTimeout,
		WithCacheLogger(logger.Named("cache")),
		WithCacheMetrics(cfg.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.cache = cache

	return a, nil
}

// Region returns the configured region, falling back to the region of the
// AWS configuration. It is empty when neither is known.
func (a *Auth) Region() string {
	if a.region != "" {
		return a.region
	}
	return a.defaultRegion
}

// CacheTimeout returns how long tokens are reused.
func (a *Auth) CacheTimeout() time.Duration {
	return a.cache.TTL()
}

// GenerateAuthToken returns a token for connecting as user to host:port,
// reusing a cached token while it is younger than the cache timeout.
//
// region overrides the configured region when non-empty. Otherwise the
// configured region, the region embedded in an RDS hostname and the AWS
// configuration's region are tried in that order.
func (a *Auth) GenerateAuthToken(ctx context.Context, user, host string, port int, region string) (string, error) {
	key, err := BuildKey(user, host, port, a.resolveRegion(host, region))
	if err != nil {
		return "", err
	}
	return a.cache.Token(ctx, key, a.signer)
}

// Invalidate drops any cached token for the target, e.g. after the server
// rejected it.
func (a *Auth) Invalidate(user, host string, port int, region string) {
	key, err := BuildKey(user, host, port, a.resolveRegion(host, region))
	if err != nil {
		return
	}
	a.cache.Invalidate(key)
}

func (a *Auth) resolveRegion(host, region string) string {
	if region != "" {
		return region
	}
	if a.region != "" {
		return a.region
	}
	if r, ok := RegionFromHost(host); ok {
		return r
	}
	return a.defaultRegion
}

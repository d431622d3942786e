package rdsiamauth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// recordingSigner records the keys it signs and returns "token-<n>".
type recordingSigner struct {
	mu   sync.Mutex
	keys []CacheKey
}

func (s *recordingSigner) Sign(_ context.Context, key CacheKey) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "token-" + key.Region, nil
}

func (s *recordingSigner) Keys() []CacheKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CacheKey(nil), s.keys...)
}

func newTestAuth(t *testing.T, opts ...Option) *Auth {
	t.Helper()
	a, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return a
}

func TestNew_Defaults(t *testing.T) {
	a := newTestAuth(t, WithRegion("us-west-2"), WithSigner(&recordingSigner{}))
	if a.Region() != "us-west-2" {
		t.Errorf("Region() = %q, want %q", a.Region(), "us-west-2")
	}
	if a.CacheTimeout() != 600*time.Second {
		t.Errorf("CacheTimeout() = %s, want 10m0s", a.CacheTimeout())
	}

	a = newTestAuth(t, WithRegion("us-west-2"), WithCacheTimeout(300*time.Second), WithSigner(&recordingSigner{}))
	if a.CacheTimeout() != 300*time.Second {
		t.Errorf("CacheTimeout() = %s, want 5m0s", a.CacheTimeout())
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	cases := map[string]Option{
		"negative-cache-timeout": WithCacheTimeout(-time.Second),
		"empty-region":           WithRegion(""),
		"nil-signer":             WithSigner(nil),
		"nil-credentials":        WithCredentials(nil),
		"empty-static-key":       WithStaticCredentials("", "secret", ""),
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(context.Background(), opt); err == nil {
				t.Error("New() should return error")
			}
		})
	}
}

func TestNew_AWSConfigWithoutCredentials(t *testing.T) {
	_, err := New(context.Background(), WithAWSConfig(aws.Config{Region: "us-east-1"}))
	if err == nil {
		t.Fatal("New() with an aws.Config lacking credentials should return error")
	}
}

func TestNew_DefaultCredentialChain(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", testCredentials.AccessKeyID)
	t.Setenv("AWS_SECRET_ACCESS_KEY", testCredentials.SecretAccessKey)
	t.Setenv("AWS_SESSION_TOKEN", "")

	a := newTestAuth(t)
	if a.Region() != "eu-west-1" {
		t.Errorf("Region() = %q, want region from environment", a.Region())
	}

	token, err := a.GenerateAuthToken(context.Background(), "app", "db.internal.example.com", 5432, "")
	if err != nil {
		t.Fatalf("GenerateAuthToken() unexpected error: %v", err)
	}
	vals := parseToken(t, token)
	if !strings.HasPrefix(vals.Get("X-Amz-Credential"), testCredentials.AccessKeyID+"/") {
		t.Errorf("token signed with unexpected credential %q", vals.Get("X-Amz-Credential"))
	}
	if !strings.Contains(vals.Get("X-Amz-Credential"), "/eu-west-1/rds-db/") {
		t.Errorf("token scope should use environment region, got %q", vals.Get("X-Amz-Credential"))
	}
}

func TestNew_StaticCredentials(t *testing.T) {
	a := newTestAuth(t,
		WithRegion("us-east-1"),
		WithStaticCredentials(testCredentials.AccessKeyID, testCredentials.SecretAccessKey, ""),
	)
	token, err := a.GenerateAuthToken(context.Background(), "app", testHost, 5432, "")
	if err != nil {
		t.Fatalf("GenerateAuthToken() unexpected error: %v", err)
	}
	if vals := parseToken(t, token); vals.Has("X-Amz-Security-Token") {
		t.Error("token should not carry a session token")
	}
}

func TestGenerateAuthToken_RegionResolution(t *testing.T) {
	const rdsHost = "test-db.xxxxx.ap-southeast-2.rds.amazonaws.com"
	const plainHost = "db.internal.example.com"

	tests := []struct {
		name   string
		opts   []Option
		host   string
		region string
		want   string
	}{
		{"argument wins", []Option{WithRegion("us-west-2")}, rdsHost, "eu-west-1", "eu-west-1"},
		{"configured region", []Option{WithRegion("us-west-2")}, rdsHost, "", "us-west-2"},
		{"derived from host", []Option{WithAWSConfig(aws.Config{Region: "us-east-1", Credentials: testCredentials})}, rdsHost, "", "ap-southeast-2"},
		{"aws config region", []Option{WithAWSConfig(aws.Config{Region: "us-east-1", Credentials: testCredentials})}, plainHost, "", "us-east-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := &recordingSigner{}
			a := newTestAuth(t, append(tt.opts, WithSigner(signer))...)

			token, err := a.GenerateAuthToken(context.Background(), "test_user", tt.host, 5432, tt.region)
			if err != nil {
				t.Fatalf("GenerateAuthToken() unexpected error: %v", err)
			}
			if token != "token-"+tt.want {
				t.Errorf("GenerateAuthToken() = %q, want %q", token, "token-"+tt.want)
			}
			keys := signer.Keys()
			if len(keys) != 1 || keys[0].Region != tt.want {
				t.Errorf("signed keys = %+v, want one key in %q", keys, tt.want)
			}
		})
	}
}

func TestGenerateAuthToken_NoRegion(t *testing.T) {
	signer := &recordingSigner{}
	a := newTestAuth(t, WithSigner(signer))

	_, err := a.GenerateAuthToken(context.Background(), "app", "db.internal.example.com", 5432, "")
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("GenerateAuthToken() error = %v, want ErrInvalidTarget", err)
	}
	if len(signer.Keys()) != 0 {
		t.Error("signer should not be called for an invalid target")
	}
}

func TestGenerateAuthToken_CachesPerTarget(t *testing.T) {
	signer := &recordingSigner{}
	a := newTestAuth(t, WithRegion("us-west-2"), WithSigner(signer))
	ctx := context.Background()

	for range 3 {
		if _, err := a.GenerateAuthToken(ctx, "test_user", testHost, 5432, ""); err != nil {
			t.Fatalf("GenerateAuthToken() unexpected error: %v", err)
		}
	}
	if got := len(signer.Keys()); got != 1 {
		t.Errorf("signer called %d times, want 1", got)
	}

	a.Invalidate("test_user", testHost, 5432, "")
	if _, err := a.GenerateAuthToken(ctx, "test_user", testHost, 5432, ""); err != nil {
		t.Fatalf("GenerateAuthToken() unexpected error: %v", err)
	}
	if got := len(signer.Keys()); got != 2 {
		t.Errorf("signer called %d times after Invalidate, want 2", got)
	}
}

func TestGenerateAuthToken_SigningFailure(t *testing.T) {
	sentinel := errors.New("expired credentials")
	a := newTestAuth(t,
		WithRegion("us-east-1"),
		WithCredentials(failingCredentials{err: sentinel}),
	)

	_, err := a.GenerateAuthToken(context.Background(), "app", testHost, 5432, "")
	if !errors.Is(err, ErrSigningFailed) {
		t.Errorf("GenerateAuthToken() error should match ErrSigningFailed, got: %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("GenerateAuthToken() error should wrap the credential error, got: %v", err)
	}
}

package rdsiamauth

import (
	"errors"
	"testing"
)

func TestRegionFromHost(t *testing.T) {
	tests := []struct {
		host   string
		region string
		ok     bool
	}{
		{"test-db.xxxxx.us-west-2.rds.amazonaws.com", "us-west-2", true},
		{"prod.cluster-abc123.eu-central-1.rds.amazonaws.com", "eu-central-1", true},
		{"prod.cluster-ro-abc123.eu-central-1.rds.amazonaws.com", "eu-central-1", true},
		{"my-proxy.proxy-abc123.ap-southeast-2.rds.amazonaws.com", "ap-southeast-2", true},
		{"db.abc.cn-north-1.rds.amazonaws.com.cn", "cn-north-1", true},
		{"DB.ABC.US-EAST-1.RDS.AMAZONAWS.COM.", "us-east-1", true},
		{"db.internal.example.com", "", false},
		{"localhost", "", false},
		{"rds.amazonaws.com", "", false},
		{".rds.amazonaws.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			region, ok := RegionFromHost(tt.host)
			if ok != tt.ok || region != tt.region {
				t.Errorf("RegionFromHost(%q) = (%q, %v), want (%q, %v)", tt.host, region, ok, tt.region, tt.ok)
			}
		})
	}
}

func TestSplitAddr(t *testing.T) {
	tests := []struct {
		addr string
		host string
		port int
	}{
		{"db.example.com:3307", "db.example.com", 3307},
		{"db.example.com", "db.example.com", 3306},
		{"[::1]:5432", "::1", 5432},
		{"[::1]", "::1", 3306},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			host, port, err := SplitAddr(tt.addr, 3306)
			if err != nil {
				t.Fatalf("SplitAddr(%q) unexpected error: %v", tt.addr, err)
			}
			if host != tt.host || port != tt.port {
				t.Errorf("SplitAddr(%q) = (%q, %d), want (%q, %d)", tt.addr, host, port, tt.host, tt.port)
			}
		})
	}
}

func TestSplitAddr_Malformed(t *testing.T) {
	for _, addr := range []string{"db.example.com:abc", "a:b:c", "[::1"} {
		t.Run(addr, func(t *testing.T) {
			if _, _, err := SplitAddr(addr, 3306); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("SplitAddr(%q) error = %v, want ErrInvalidTarget", addr, err)
			}
		})
	}
}

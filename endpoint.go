package rdsiamauth

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// RegionFromHost extracts the AWS region from an RDS endpoint such as
// "mydb.abc123.eu-west-1.rds.amazonaws.com". Instance, cluster, reader and
// proxy endpoints share the same layout, as do the China partition
// (".amazonaws.com.cn") endpoints. ok is false for anything else, including
// custom DNS names pointing at RDS.
func RegionFromHost(host string) (region string, ok bool) {
	labels := strings.Split(strings.ToLower(strings.TrimSuffix(host, ".")), ".")
	for i := 1; i+1 < len(labels); i++ {
		if labels[i] == "rds" && labels[i+1] == "amazonaws" {
			if labels[i-1] == "" {
				return "", false
			}
			return labels[i-1], true
		}
	}
	return "", false
}

// SplitAddr splits a "host:port" address. When addr carries no port,
// defaultPort is used.
func SplitAddr(addr string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port at all is fine; anything else is malformed.
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) || addrErr.Err != "missing port in address" {
			return "", 0, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		return strings.Trim(addr, "[]"), defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid port %q", ErrInvalidTarget, portStr)
	}
	return host, port, nil
}

// Package sqlauth wraps any database/sql driver so that each new physical
// connection is opened with a fresh RDS IAM token as its password.
//
// database/sql keeps a connector for the lifetime of a *sql.DB and calls it
// whenever the pool grows, which is exactly the point where a token is
// needed:
//
//	conn := sqlauth.NewConnector(auth, &pq.Driver{}, sqlauth.Target{
//		User: "app", Host: host, Port: 5432,
//	}, func(token string) string {
//		return fmt.Sprintf("postgres://app:%s@%s:5432/app", url.QueryEscape(token), host)
//	})
//	db := sql.OpenDB(conn)
package sqlauth

import (
	"context"
	"database/sql/driver"
	"fmt"
)

// TokenProvider returns an authentication token for a connection target.
// *rdsiamauth.Auth implements it.
type TokenProvider interface {
	GenerateAuthToken(ctx context.Context, user, host string, port int, region string) (string, error)
}

// Target is the identity a token is requested for. Region may be empty to
// let the provider resolve it.
type Target struct {
	User   string
	Host   string
	Port   int
	Region string
}

// DSNFunc builds the driver's data source name around a token.
type DSNFunc func(token string) string

// Connector implements driver.Connector.
type Connector struct {
	provider TokenProvider
	driver   driver.Driver
	target   Target
	dsn      DSNFunc
}

var _ driver.Connector = (*Connector)(nil)

// NewConnector returns a connector that opens connections through d using
// the DSN produced by dsn for every new token.
func NewConnector(p TokenProvider, d driver.Driver, target Target, dsn DSNFunc) *Connector {
	return &Connector{
		provider: p,
		driver:   d,
		target:   target,
		dsn:      dsn,
	}
}

// Connect obtains a token and opens a connection with it. A token failure
// aborts the attempt without touching the driver.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	t := c.target
	token, err := c.provider.GenerateAuthToken(ctx, t.User, t.Host, t.Port, t.Region)
	if err != nil {
		return nil, fmt.Errorf("sqlauth: obtaining token for %s@%s: %w", t.User, t.Host, err)
	}

	name := c.dsn(token)
	if dc, ok := c.driver.(driver.DriverContext); ok {
		connector, err := dc.OpenConnector(name)
		if err != nil {
			return nil, err
		}
		return connector.Connect(ctx)
	}
	return c.driver.Open(name)
}

// Driver returns the wrapped driver.
func (c *Connector) Driver() driver.Driver {
	return c.driver
}

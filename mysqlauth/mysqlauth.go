// Package mysqlauth supplies RDS IAM tokens to go-sql-driver/mysql
// connections at connect time.
//
// RDS sends IAM tokens with the mysql_clear_password plugin, so Register
// enables cleartext passwords on the config. Always pair it with TLS.
package mysqlauth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chinmina/rdsiamauth"
	"github.com/go-sql-driver/mysql"
)

// DefaultPort is used when the configured address carries no port.
const DefaultPort = 3306

// TokenProvider returns an authentication token for a connection target.
// *rdsiamauth.Auth implements it.
type TokenProvider interface {
	GenerateAuthToken(ctx context.Context, user, host string, port int, region string) (string, error)
}

// BeforeConnect returns a hook that sets Passwd to a token from p before
// each new connection.
func BeforeConnect(p TokenProvider) func(context.Context, *mysql.Config) error {
	return func(ctx context.Context, c *mysql.Config) error {
		host, port, err := rdsiamauth.SplitAddr(c.Addr, DefaultPort)
		if err != nil {
			return fmt.Errorf("mysqlauth: %w", err)
		}
		token, err := p.GenerateAuthToken(ctx, c.User, host, port, "")
		if err != nil {
			return fmt.Errorf("mysqlauth: obtaining token for %s@%s: %w", c.User, c.Addr, err)
		}
		c.Passwd = token
		return nil
	}
}

// Register installs the token hook on cfg. The driver keeps a single
// BeforeConnect hook, so registering twice is the same as once.
func Register(p TokenProvider, cfg *mysql.Config) error {
	cfg.AllowCleartextPasswords = true
	return cfg.Apply(mysql.BeforeConnect(BeforeConnect(p)))
}

// OpenDB registers p on cfg and opens a *sql.DB backed by it.
func OpenDB(p TokenProvider, cfg *mysql.Config) (*sql.DB, error) {
	if err := Register(p, cfg); err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysqlauth: creating connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

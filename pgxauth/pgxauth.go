// Package pgxauth supplies RDS IAM tokens to pgx connections at connect
// time.
//
//	auth, err := rdsiamauth.New(ctx)
//	pool, err := pgxauth.NewPool(ctx, auth, "postgres://app@mydb.abc.eu-west-1.rds.amazonaws.com:5432/app?sslmode=require")
//
// Every new physical connection asks the provider for a token, so the pool
// keeps working after the token that opened its first connection expires.
package pgxauth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenProvider returns an authentication token for a connection target.
// *rdsiamauth.Auth implements it.
type TokenProvider interface {
	GenerateAuthToken(ctx context.Context, user, host string, port int, region string) (string, error)
}

// BeforeConnect returns a pgxpool BeforeConnect hook that sets the
// connection password to a token from p. A token failure aborts the
// connection attempt.
func BeforeConnect(p TokenProvider) func(context.Context, *pgx.ConnConfig) error {
	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, err := p.GenerateAuthToken(ctx, cc.User, cc.Host, int(cc.Port), "")
		if err != nil {
			return fmt.Errorf("pgxauth: obtaining token for %s@%s: %w", cc.User, cc.Host, err)
		}
		cc.Password = token
		return nil
	}
}

// Register installs the token hook on cfg, replacing any BeforeConnect hook
// already set. Registering twice has the same effect as registering once.
func Register(p TokenProvider, cfg *pgxpool.Config) {
	cfg.BeforeConnect = BeforeConnect(p)
}

// NewPool parses connString, registers p and creates the pool.
func NewPool(ctx context.Context, p TokenProvider, connString string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgxauth: parsing connection string: %w", err)
	}
	Register(p, cfg)
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Connect opens a single connection authenticated with a token from p.
func Connect(ctx context.Context, p TokenProvider, connString string) (*pgx.Conn, error) {
	cc, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("pgxauth: parsing connection string: %w", err)
	}
	if err := BeforeConnect(p)(ctx, cc); err != nil {
		return nil, err
	}
	return pgx.ConnectConfig(ctx, cc)
}

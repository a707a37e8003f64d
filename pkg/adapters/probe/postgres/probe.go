// Package postgres probes PostgreSQL-compatible databases
// (RDS PostgreSQL, Aurora PostgreSQL) through the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/helixdata/onboard-engine/pkg/adapters/probe"
	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/secrets"
)

func init() {
	probe.RegisterDB("postgres", func(cfg probe.DBConfig) probe.DBProber {
		return &Prober{cfg: cfg}
	})
}

const tableExistsQuery = "SELECT COUNT(*) FROM pg_catalog.pg_tables WHERE tablename = $1"

// Prober verifies PostgreSQL sources table by table.
type Prober struct {
	cfg probe.DBConfig
}

// buildConnString builds a PostgreSQL URL. User-provided fields are
// URL-escaped so special characters in passwords don't break parsing.
func (p *Prober) buildConnString(src models.DbSource, creds secrets.Credentials) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(creds.Username, creds.Password),
		Host:     net.JoinHostPort(src.Host, src.Port),
		Path:     "/" + src.Database,
		RawQuery: fmt.Sprintf("connect_timeout=%d&sslmode=prefer", int(p.cfg.ConnectTimeout.Seconds())),
	}
	return u.String()
}

// ProbeSource connects to the declared database and confirms every
// listed table exists. Returns "" on success or the first failure.
func (p *Prober) ProbeSource(ctx context.Context, src models.DbSource) string {
	creds, errStr := probe.ResolveCredentials(ctx, p.cfg.Secrets, src)
	if errStr != "" {
		return errStr
	}

	db, err := sql.Open("pgx", p.buildConnString(src, creds))
	if err != nil {
		return fmt.Sprintf("Error: Failed to connect to '%s' database '%s': %v", src.DbType, src.Host, err)
	}
	defer db.Close()

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		return fmt.Sprintf("Error: Failed to connect to '%s' database '%s': %v", src.DbType, src.Host, err)
	}

	for _, table := range src.Tables {
		var count int
		if err := db.QueryRowContext(ctx, tableExistsQuery, table.Name).Scan(&count); err != nil {
			return fmt.Sprintf("Error: Failed to check if table '%s' exists in '%s' database: %v", table.Name, src.Database, err)
		}
		if count == 0 {
			return fmt.Sprintf("Error: Table '%s' does not exist in '%s' database", table.Name, src.Database)
		}
	}
	return ""
}

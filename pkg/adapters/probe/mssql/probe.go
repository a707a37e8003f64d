// Package mssql probes Microsoft SQL Server databases through the
// go-mssqldb driver.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/helixdata/onboard-engine/pkg/adapters/probe"
	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/secrets"
)

func init() {
	// "mssql" matches the source-kind allow-list; "sqlserver" is kept
	// as the driver's native engine tag.
	factory := func(cfg probe.DBConfig) probe.DBProber {
		return &Prober{cfg: cfg}
	}
	probe.RegisterDB("mssql", factory)
	probe.RegisterDB("sqlserver", factory)
}

const tableExistsQuery = "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = @p1"

// Prober verifies SQL Server sources table by table.
type Prober struct {
	cfg probe.DBConfig
}

func (p *Prober) buildConnString(src models.DbSource, creds secrets.Credentials) string {
	query := url.Values{}
	query.Set("database", src.Database)
	query.Set("dial timeout", fmt.Sprintf("%d", int(p.cfg.ConnectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(creds.Username, creds.Password),
		Host:     net.JoinHostPort(src.Host, src.Port),
		RawQuery: query.Encode(),
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

	db, err := sql.Open("sqlserver", p.buildConnString(src, creds))
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

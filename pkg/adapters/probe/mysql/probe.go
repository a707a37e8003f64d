// Package mysql probes MySQL-compatible databases (RDS MySQL, Aurora MySQL).
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/helixdata/onboard-engine/pkg/adapters/probe"
	"github.com/helixdata/onboard-engine/pkg/models"
)

func init() {
	probe.RegisterDB("mysql", func(cfg probe.DBConfig) probe.DBProber {
		return &Prober{cfg: cfg}
	})
}

const tableExistsQuery = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"

// Prober verifies MySQL sources table by table.
type Prober struct {
	cfg probe.DBConfig
}

// ProbeSource connects to the declared database and confirms every
// listed table exists. Returns "" on success or the first failure.
func (p *Prober) ProbeSource(ctx context.Context, src models.DbSource) string {
	creds, errStr := probe.ResolveCredentials(ctx, p.cfg.Secrets, src)
	if errStr != "" {
		return errStr
	}

	dsnCfg := mysqldrv.NewConfig()
	dsnCfg.User = creds.Username
	dsnCfg.Passwd = creds.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = net.JoinHostPort(src.Host, src.Port)
	dsnCfg.DBName = src.Database
	dsnCfg.Timeout = p.cfg.ConnectTimeout

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
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

// Package opensearch probes OpenSearch domains. Declared tables map to
// indices, so verification is an index existence check per table.
package opensearch

import (
	"context"
	"fmt"
	"net"
	"net/http"

	opensearchclient "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/helixdata/onboard-engine/pkg/adapters/probe"
	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/secrets"
)

func init() {
	probe.RegisterDB("opensearch", func(cfg probe.DBConfig) probe.DBProber {
		return &Prober{cfg: cfg, connect: connect}
	})
}

// Prober verifies OpenSearch sources index by index.
type Prober struct {
	cfg probe.DBConfig

	// connect is swapped out in tests.
	connect func(cfg probe.DBConfig, src models.DbSource, creds secrets.Credentials) (opensearchapi.Transport, error)
}

func connect(cfg probe.DBConfig, src models.DbSource, creds secrets.Credentials) (opensearchapi.Transport, error) {
	return opensearchclient.NewClient(opensearchclient.Config{
		Addresses: []string{fmt.Sprintf("https://%s", net.JoinHostPort(src.Host, src.Port))},
		Username:  creds.Username,
		Password:  creds.Password,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		},
	})
}

// ProbeSource pings the domain and confirms every listed index exists.
// Returns "" on success or the first failure.
func (p *Prober) ProbeSource(ctx context.Context, src models.DbSource) string {
	creds, errStr := probe.ResolveCredentials(ctx, p.cfg.Secrets, src)
	if errStr != "" {
		return errStr
	}

	client, err := p.connect(p.cfg, src, creds)
	if err != nil {
		return fmt.Sprintf("Error: Failed to connect to '%s' database '%s': %v", src.DbType, src.Host, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	ping, err := opensearchapi.PingRequest{}.Do(connectCtx, client)
	if err != nil {
		return fmt.Sprintf("Error: Failed to connect to '%s' database '%s': %v", src.DbType, src.Host, err)
	}
	ping.Body.Close()
	if ping.IsError() {
		return fmt.Sprintf("Error: Failed to connect to '%s' database '%s': %s", src.DbType, src.Host, ping.Status())
	}

	for _, table := range src.Tables {
		res, err := opensearchapi.IndicesExistsRequest{Index: []string{table.Name}}.Do(ctx, client)
		if err != nil {
			return fmt.Sprintf("Error: Failed to check if table '%s' exists in '%s' database: %v", table.Name, src.Database, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusNotFound {
			return fmt.Sprintf("Error: Table '%s' does not exist in '%s' database", table.Name, src.Database)
		}
		if res.IsError() {
			return fmt.Sprintf("Error: Failed to check if table '%s' exists in '%s' database: %s", table.Name, src.Database, res.Status())
		}
	}
	return ""
}

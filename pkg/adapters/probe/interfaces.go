// Package probe verifies reachability and compatibility of declared
// datasources. Each backend registers a prober via init(); probers turn
// every per-resource failure into a human-readable string so one broken
// resource never aborts the rest of a verification run.
package probe

import (
	"context"
	"time"

	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/secrets"
)

// FileProber verifies one object-store location. The returned string is
// empty on success; otherwise it carries the failure with enough context
// to identify the resource.
type FileProber interface {
	ProbeObject(ctx context.Context, rawURL string) string
}

// DBProber verifies one declared database: it connects and confirms
// every listed table (or search index) exists. The returned string is
// empty on success.
type DBProber interface {
	ProbeSource(ctx context.Context, src models.DbSource) string
}

// FileConfig parameterizes object-store probers.
type FileConfig struct {
	// Region the initial client binds to; probers rebind to a bucket's
	// discovered region when it differs.
	Region string
	// SupportedExtensions is the file-extension allow-list.
	SupportedExtensions []string
}

// DBConfig parameterizes database probers.
type DBConfig struct {
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration
	// Secrets resolves a source's credential reference.
	Secrets secrets.Resolver
}

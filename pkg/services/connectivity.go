package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/adapters/probe"
	"github.com/helixdata/onboard-engine/pkg/apperrors"
	"github.com/helixdata/onboard-engine/pkg/config"
	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/secrets"
	"github.com/helixdata/onboard-engine/pkg/workerpool"
)

// ConnectivityVerifier checks that every datasource a topology declares
// is reachable and compatible before any of it is persisted.
type ConnectivityVerifier interface {
	// Verify returns nil when every declared resource checks out.
	// Declared kinds outside the allow-list produce an
	// *apperrors.UnsupportedSourceError before any network I/O; probe
	// failures are aggregated into an *apperrors.ConnectivityError.
	Verify(ctx context.Context, topology models.AppDataSource) error
}

// connectivityVerifier implements ConnectivityVerifier on the prober
// registry, with separate concurrency caps for object-store and
// database probing.
type connectivityVerifier struct {
	cfg      *config.Config
	secrets  secrets.Resolver
	filePool *workerpool.Pool
	dbPool   *workerpool.Pool
	logger   *zap.Logger
}

// NewConnectivityVerifier creates a verifier using the configured
// allow-lists and concurrency limits.
func NewConnectivityVerifier(cfg *config.Config, resolver secrets.Resolver, logger *zap.Logger) ConnectivityVerifier {
	return &connectivityVerifier{
		cfg:      cfg,
		secrets:  resolver,
		filePool: workerpool.New(workerpool.Config{MaxConcurrent: cfg.Filestore.MaxConcurrentRequests}, logger),
		dbPool:   workerpool.New(workerpool.Config{MaxConcurrent: cfg.Datastore.MaxConcurrentRequests}, logger),
		logger:   logger.Named("connectivity"),
	}
}

func (v *connectivityVerifier) Verify(ctx context.Context, topology models.AppDataSource) error {
	if err := v.checkSupportedKinds(topology); err != nil {
		return err
	}

	started := time.Now()
	var failures []string

	fileFailures, err := v.verifyFilestores(ctx, topology.Filestore)
	if err != nil {
		return err
	}
	failures = append(failures, fileFailures...)
	failures = append(failures, v.verifyDatastores(ctx, topology.Datastore)...)

	v.logger.Info("connectivity verification finished",
		zap.Int("failures", len(failures)),
		zap.Duration("duration", time.Since(started)))

	if len(failures) > 0 {
		return &apperrors.ConnectivityError{Errors: failures}
	}
	return nil
}

// checkSupportedKinds rejects the whole topology if any declared kind is
// outside the allow-list. All offenders are reported at once.
func (v *connectivityVerifier) checkSupportedKinds(topology models.AppDataSource) error {
	fileKinds, dbKinds := topology.Kinds()

	var unsupported []string
	for _, kind := range fileKinds {
		if !contains(v.cfg.SupportedSources.Filestore, kind) {
			unsupported = append(unsupported, kind)
		}
	}
	for _, kind := range dbKinds {
		if !contains(v.cfg.SupportedSources.Datastore, kind) {
			unsupported = append(unsupported, kind)
		}
	}
	if len(unsupported) > 0 {
		sort.Strings(unsupported)
		return &apperrors.UnsupportedSourceError{Kinds: unsupported}
	}
	return nil
}

func (v *connectivityVerifier) verifyFilestores(ctx context.Context, filestore map[string][]models.FileSource) ([]string, error) {
	kinds := sortedKeys(filestore)

	var items []workerpool.Item[string]
	for _, kind := range kinds {
		factory := probe.FileFactory(kind)
		if factory == nil {
			return nil, fmt.Errorf("no prober registered for filestore kind %q", kind)
		}
		prober, err := factory(ctx, probe.FileConfig{
			Region:              v.cfg.AWS.Region,
			SupportedExtensions: v.cfg.SupportedFiles.Extensions(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s prober: %w", kind, err)
		}

		for _, src := range filestore[kind] {
			url := src.URL
			items = append(items, workerpool.Item[string]{
				ID: strconv.Itoa(len(items)),
				Execute: func(ctx context.Context) (string, error) {
					return prober.ProbeObject(ctx, url), nil
				},
			})
		}
	}

	return collectFailures(ctx, v.filePool, items), nil
}

func (v *connectivityVerifier) verifyDatastores(ctx context.Context, datastore map[string][]models.DbSource) []string {
	var failures []string
	var items []workerpool.Item[string]

	for _, kind := range sortedKeys(datastore) {
		for _, src := range datastore[kind] {
			src := src
			factory := probe.DBFactory(src.DbType)
			if factory == nil {
				// Never connect for an engine we have no driver for.
				failures = append(failures, fmt.Sprintf("Error: Unsupported database type '%s' for database '%s'", src.DbType, src.Database))
				continue
			}
			prober := factory(probe.DBConfig{
				ConnectTimeout: time.Duration(v.cfg.Datastore.ConnectionTimeoutSeconds) * time.Second,
				Secrets:        v.secrets,
			})
			items = append(items, workerpool.Item[string]{
				ID: strconv.Itoa(len(items)),
				Execute: func(ctx context.Context) (string, error) {
					return prober.ProbeSource(ctx, src), nil
				},
			})
		}
	}

	return append(failures, collectFailures(ctx, v.dbPool, items)...)
}

// collectFailures runs the items and returns the non-empty probe results
// in submission order, so repeated runs report failures consistently.
func collectFailures(ctx context.Context, pool *workerpool.Pool, items []workerpool.Item[string]) []string {
	ordered := make([]string, len(items))
	for _, res := range workerpool.Process(ctx, pool, items) {
		idx, err := strconv.Atoi(res.ID)
		if err != nil || idx < 0 || idx >= len(ordered) {
			continue
		}
		if res.Err != nil {
			ordered[idx] = fmt.Sprintf("Error: Probe cancelled: %v", res.Err)
			continue
		}
		ordered[idx] = res.Result
	}

	var failures []string
	for _, msg := range ordered {
		if msg != "" {
			failures = append(failures, msg)
		}
	}
	return failures
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

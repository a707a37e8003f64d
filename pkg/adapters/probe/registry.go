package probe

import (
	"context"
	"sync"
)

// FileProberFactory builds a FileProber. Construction may perform
// credential-chain discovery, so failures here are fatal for the
// verification call rather than per-resource data.
type FileProberFactory func(ctx context.Context, cfg FileConfig) (FileProber, error)

// DBProberFactory builds a DBProber for one database type.
type DBProberFactory func(cfg DBConfig) DBProber

var (
	registryMu   sync.RWMutex
	fileRegistry = make(map[string]FileProberFactory)
	dbRegistry   = make(map[string]DBProberFactory)
)

// RegisterFile is called by each object-store backend's init().
// The key is the source kind as declared in a topology (e.g. "s3").
func RegisterFile(kind string, factory FileProberFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	fileRegistry[kind] = factory
}

// RegisterDB is called by each database backend's init().
// The key is the db_type carried on a declared source (e.g. "mysql"),
// not the topology kind: one kind may hold sources of one engine only,
// but the engine tag is what selects the driver.
func RegisterDB(dbType string, factory DBProberFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	dbRegistry[dbType] = factory
}

// FileFactory returns the factory for an object-store kind, or nil.
func FileFactory(kind string) FileProberFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return fileRegistry[kind]
}

// DBFactory returns the factory for a database type, or nil.
func DBFactory(dbType string) DBProberFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return dbRegistry[dbType]
}

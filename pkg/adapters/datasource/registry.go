package datasource

import (
	"context"
	"sort"
	"sync"
)

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`  // "Connect to PostgreSQL 12+"
}

// DatasourceAdapterRegistration contains info + factory for creating adapters.
type DatasourceAdapterRegistration struct {
	Info    DatasourceAdapterInfo
	Factory func(ctx context.Context, config map[string]any, opts Options) (Datasource, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a datasource type.
// Returns nil if type is not registered.
func GetFactory(dsType string) func(ctx context.Context, config map[string]any, opts Options) (Datasource, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

package dbctx

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"gorm/routeorm/util/str"
)

// DataSourceInfo describes a registered data source. It is used for discovery
// and diagnostics, never for routing decisions.
type DataSourceInfo struct {
	Key         string
	Name        string
	Description string
	Properties  map[string]string
}

// Registry is the process-wide set of known data sources and table aliases.
type Registry struct {
	mu          sync.RWMutex
	dataSources map[string]DataSourceInfo
	tables      map[string]struct{}
}

// Default is the registry used when none is configured explicitly.
var Default = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		dataSources: make(map[string]DataSourceInfo),
		tables:      make(map[string]struct{}),
	}
}

func (r *Registry) RegisterDataSource(info DataSourceInfo) error {
	if str.IsBlank(info.Key) {
		return errors.Wrap(ErrInvalidArgument, "data source key is blank")
	}
	if info.Name == "" {
		info.Name = info.Key
	}
	props := make(map[string]string, len(info.Properties))
	for k, v := range info.Properties {
		props[k] = v
	}
	info.Properties = props

	r.mu.Lock()
	r.dataSources[info.Key] = info
	r.mu.Unlock()
	return nil
}

func (r *Registry) DataSource(key string) (DataSourceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.dataSources[key]
	return info, ok
}

// DataSources returns the registered keys in sorted order.
func (r *Registry) DataSources() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.dataSources))
	for k := range r.dataSources {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (r *Registry) RegisterTable(alias string) error {
	if str.IsBlank(alias) {
		return errors.Wrap(ErrInvalidArgument, "table alias is blank")
	}
	r.mu.Lock()
	r.tables[alias] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *Registry) Tables() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.tables))
	for t := range r.tables {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

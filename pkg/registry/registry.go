// Package registry holds the process-wide model and credential registry.
// It resolves a public model id to its provider binding and rotates
// credential pools round-robin across requests.
//
// The registry is the only state shared across concurrent requests. Lookups
// take a read lock; rotation is a read-modify-write and holds the write
// lock for its whole duration so no two requests ever observe the same
// rotated index.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/unillm/unillm/pkg/api"
	"github.com/unillm/unillm/pkg/config"
)

// Sentinel errors for resolution failures. All of them are caller
// configuration errors, never transient.
var (
	ErrUnknownModel       = errors.New("unknown model")
	ErrUnknownKeyPool     = errors.New("unknown credential pool")
	ErrProxyNotConfigured = errors.New("proxy requested but not configured")
)

// ModelInfo binds a public model id to an upstream model name and the
// credential pool that serves it.
type ModelInfo struct {
	// Name is the model name sent upstream.
	Name string

	// KeyPoolID references a credential pool.
	KeyPoolID string
}

// Credential is the transient, per-request result of rotating a pool once.
type Credential struct {
	Secret    string
	Provider  config.ProviderRef
	NeedProxy bool
}

// keyPool is an ordered set of equivalent secrets with a rotation cursor.
// The cursor only ever grows; the rotated index is cursor mod len(keys).
type keyPool struct {
	keys      []string
	provider  config.ProviderRef
	needProxy bool
	cursor    uint64
}

// Registry is the shared model/credential registry. Constructed once at
// startup; afterwards the only mutation is the rotation cursor advance.
type Registry struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
	pools  map[string]*keyPool
}

// New builds a Registry from the persisted registry document. Model ids
// without a tag also get a ":latest" alias, which OpenWebUI expects when
// listing Ollama models.
func New(reg config.RegistryConfig) *Registry {
	r := &Registry{
		models: make(map[string]ModelInfo, len(reg.Models)*2),
		pools:  make(map[string]*keyPool, len(reg.APIKeys)),
	}

	for id, pool := range reg.APIKeys {
		r.pools[id] = &keyPool{
			keys:      append([]string(nil), pool.APIKey...),
			provider:  pool.Provider,
			needProxy: pool.NeedProxy,
		}
	}

	for id, m := range reg.Models {
		info := ModelInfo{Name: m.Name, KeyPoolID: m.APIKeyID}
		r.models[id] = info
		if !strings.Contains(id, ":") {
			alias := id + ":latest"
			if _, taken := reg.Models[alias]; !taken {
				r.models[alias] = info
			}
		}
	}

	return r
}

// Resolve looks up the binding for a public model id.
func (r *Registry) Resolve(modelID string) (ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.models[modelID]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return info, nil
}

// Rotate advances a pool's cursor and returns the selected credential.
// The read-modify-write runs under the exclusive lock, so concurrent
// requests against the same pool receive distinct consecutive indices,
// exactly periodic with the pool size.
func (r *Registry) Rotate(poolID string) (Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool, ok := r.pools[poolID]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %q", ErrUnknownKeyPool, poolID)
	}

	idx := pool.cursor % uint64(len(pool.keys))
	pool.cursor++

	return Credential{
		Secret:    pool.keys[idx],
		Provider:  pool.provider,
		NeedProxy: pool.needProxy,
	}, nil
}

// Models lists all registered model ids for GET /api/tags, sorted for a
// stable listing.
func (r *Registry) Models() []api.ModelEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]api.ModelEntry, 0, len(r.models))
	for id := range r.models {
		entries = append(entries, api.ModelEntry{Name: id, Model: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

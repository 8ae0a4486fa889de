package metastore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Router manages metadata database adapters and connection pooling
type Router struct {
	factories map[string]AdapterFactory
	pool      map[string]Adapter
	mu        sync.RWMutex
}

// NewRouter creates a new adapter router
func NewRouter() *Router {
	return &Router{
		factories: make(map[string]AdapterFactory),
		pool:      make(map[string]Adapter),
	}
}

// RegisterAdapter registers an adapter factory for a driver
func (r *Router) RegisterAdapter(driver string, factory AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// SupportedDrivers returns registered drivers in sorted order
func (r *Router) SupportedDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]string, 0, len(r.factories))
	for driver := range r.factories {
		drivers = append(drivers, driver)
	}
	sort.Strings(drivers)
	return drivers
}

// GetAdapter returns a connected adapter, reusing a healthy pooled one
func (r *Router) GetAdapter(ctx context.Context, driver string, config ConnectionConfig) (Adapter, error) {
	key := driver + "|" + config.DSN

	r.mu.RLock()
	adapter, ok := r.pool[key]
	r.mu.RUnlock()
	if ok {
		if err := adapter.HealthCheck(ctx); err == nil {
			return adapter, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.pool[key]; ok {
		if err := adapter.HealthCheck(ctx); err == nil {
			return adapter, nil
		}
		adapter.Close()
		delete(r.pool, key)
	}

	factory, ok := r.factories[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported metastore driver: %s", driver)
	}

	adapter = factory()
	if err := adapter.Connect(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	r.pool[key] = adapter
	return adapter, nil
}

// CloseAll closes all connections
func (r *Router) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, adapter := range r.pool {
		adapter.Close()
		delete(r.pool, key)
	}
}

// PoolSize returns the current number of pooled connections
func (r *Router) PoolSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pool)
}

// Package metrics provides the process-wide Prometheus registry and the
// metric families emitted by the fan-out executor, peer RPC client, and
// operation orchestrators. Collectors are created with promauto against
// the registry returned by GetRegistry once InitRegistry has been called;
// before that, IsEnabled reports false and callers should skip metric
// creation entirely rather than pay for no-op collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide registry, registering the standard
// Go runtime and process collectors alongside application metrics.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return registry
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil if InitRegistry
// has not been called.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// Reset tears down the registry. Intended for use between test cases that
// each want a clean metrics namespace.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}

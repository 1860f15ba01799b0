package providers

import (
	"log"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mrrustybutter/orchestrator/internal/config"
	"github.com/mrrustybutter/orchestrator/internal/models"
)

// Registry holds the configured providers. It is read-mostly after startup;
// the providers file can be edited at runtime and is hot-reloaded.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]models.Provider
	order     []string // file order, used as the final routing fallback
	path      string
}

// NewRegistry builds a registry from a loaded providers config
func NewRegistry(cfg *models.ProvidersConfig, path string) *Registry {
	r := &Registry{path: path}
	r.apply(cfg)
	return r
}

func (r *Registry) apply(cfg *models.ProvidersConfig) {
	providers := make(map[string]models.Provider, len(cfg.Providers))
	order := make([]string, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name] = p
		order = append(order, p.Name)
	}

	r.mu.Lock()
	r.providers = providers
	r.order = order
	r.mu.Unlock()
}

// Get returns a provider by name
func (r *Registry) Get(name string) (models.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Configured returns the names of providers that have credentials (or a
// coding-agent binary) configured, in file order.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, name := range r.order {
		p := r.providers[name]
		if p.Configured() {
			names = append(names, name)
		}
	}
	return names
}

// All returns every provider in file order
func (r *Registry) All() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]models.Provider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Reload re-reads the providers file and swaps the registry contents
func (r *Registry) Reload() error {
	cfg, err := config.LoadProviders(r.path)
	if err != nil {
		return err
	}
	r.apply(cfg)
	log.Printf("✅ [PROVIDERS] Reloaded %d providers from %s", len(cfg.Providers), r.path)
	return nil
}

// Watch hot-reloads the providers file on change. Blocks until done is closed.
func (r *Registry) Watch(done <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ [PROVIDERS] File watcher unavailable: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(r.path); err != nil {
		log.Printf("⚠️ [PROVIDERS] Cannot watch %s: %v", r.path, err)
		return
	}

	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := r.Reload(); err != nil {
					log.Printf("⚠️ [PROVIDERS] Reload failed: %v", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ [PROVIDERS] Watcher error: %v", err)
		}
	}
}

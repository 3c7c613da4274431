// Package plugin defines the capability surface exposed to server-side
// extensions: a read-only view of the player directory and position map, a
// player handle lookup, and three subscribable events. Extensions are
// statically linked modules that register themselves at init time; the
// server initializes every registered plugin at startup.
package plugin

import (
	"sync"

	"go.uber.org/zap"
)

// Plugin is the contract an extension module implements. Registered plugins
// are initialized once, after the world state exists but before the
// listener accepts connections.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Init is called once at startup with the capability façade. A plugin
	// wanting to react to events subscribes its callbacks here.
	Init(api *API) error
}

var registry struct {
	mu      sync.Mutex
	plugins []Plugin
}

// Register adds a plugin to the load list. It is intended to be called from
// a plugin package's init function.
func Register(p Plugin) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.plugins = append(registry.plugins, p)
}

// LoadAll initializes every registered plugin against api. A plugin whose
// Init fails is skipped and logged; the rest still load.
func LoadAll(api *API, logger *zap.SugaredLogger) {
	registry.mu.Lock()
	plugins := make([]Plugin, len(registry.plugins))
	copy(plugins, registry.plugins)
	registry.mu.Unlock()

	if len(plugins) == 0 {
		logger.Debug("no plugins found to load")
		return
	}

	loaded := 0
	for _, p := range plugins {
		logger.Debugf("loading plugin %s...", p.Name())
		if err := p.Init(api); err != nil {
			logger.Errorf("failed to load plugin %s: %v", p.Name(), err)
			continue
		}
		loaded++
	}
	logger.Infof("%d/%d plugins loaded successfully", loaded, len(plugins))
}

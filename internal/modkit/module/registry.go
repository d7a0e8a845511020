package module

import "sync"

// registry holds port bundles by module name so binaries wired in main
// (turnstilectl, the api runtime) can look them up after Build
type registry struct {
	mu    sync.RWMutex
	ports map[string]any
}

var global = &registry{ports: map[string]any{}}

// Register records ports under name, replacing any earlier bundle
func Register(name string, ports any) {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.ports[name] = ports
}

// PortsAs returns the bundle registered under name if it is a T
func PortsAs[T any](name string) (T, bool) {
	global.mu.RLock()
	v, found := global.ports[name]
	global.mu.RUnlock()

	out, ok := v.(T)
	return out, found && ok
}

// Reset empties the registry
func Reset() {
	global.mu.Lock()
	defer global.mu.Unlock()
	clear(global.ports)
}

package vectorstore

import (
	"sort"
	"strings"

	"github.com/openviking/openviking/internal/ovterrors"
)

// driverRegistry is the static capability table mapping a backend name to
// its constructor, populated here at startup instead of discovered via an
// import-time decorator. CreateDriver selects by
// config.Backend; call sites never branch on backend names themselves.
var driverRegistry = map[string]func(Config) (Driver, error){
	"local":      func(cfg Config) (Driver, error) { return NewLocalDriver(cfg) },
	"http":       func(cfg Config) (Driver, error) { return NewHTTPDriver(cfg) },
	"vikingdb":   func(cfg Config) (Driver, error) { return NewVikingDBDriver(cfg) },
	"volcengine": func(cfg Config) (Driver, error) { return NewVolcengineDriver(cfg) },
}

// CreateDriver builds the driver selected by cfg.Backend. An empty
// backend falls back to local; an unknown backend fails fast.
func CreateDriver(cfg Config) (Driver, error) {
	name := strings.ToLower(cfg.Backend)
	if name == "" {
		name = "local"
	}
	construct, ok := driverRegistry[name]
	if !ok {
		return nil, ovterrors.InvalidArgumentf(
			"vector backend %q is not registered; available backends: %s",
			cfg.Backend, strings.Join(RegisteredBackends(), ", "))
	}
	return construct(cfg)
}

// RegisteredBackends lists the known backend names, sorted.
func RegisteredBackends() []string {
	names := make([]string, 0, len(driverRegistry))
	for name := range driverRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

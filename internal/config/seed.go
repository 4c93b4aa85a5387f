package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
)

// SeedNode is one address-space node as described in a seed file.
type SeedNode struct {
	NodeID  string    `yaml:"node_id"`
	Value   SeedValue `yaml:"value"`
	EURange *float64  `yaml:"eu_range,omitempty"`
	Status  uint32    `yaml:"status"`
}

// SeedValue is a typed scalar value for a seed node, matching the common
// OPC UA built-in types a demo address space needs.
type SeedValue struct {
	Type string  `yaml:"type"` // "double", "int32", "bool", "string"
	F64  float64 `yaml:"float,omitempty"`
	I32  int32   `yaml:"int,omitempty"`
	Bool bool    `yaml:"bool,omitempty"`
	Str  string  `yaml:"string,omitempty"`
}

// SeedFile is the top-level shape of an address-space seed file.
type SeedFile struct {
	Nodes []SeedNode `yaml:"nodes"`
}

// LoadSeed reads and parses a seed file from disk.
func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed writes every node in seed into space, overwriting existing
// values for nodes that already exist.
func ApplySeed(space *addrspace.MemorySpace, seed *SeedFile) error {
	for _, n := range seed.Nodes {
		id, err := ua.ParseNodeID(n.NodeID)
		if err != nil {
			return fmt.Errorf("node id %q: %w", n.NodeID, err)
		}

		variant, err := ua.NewVariant(n.Value.native())
		if err != nil {
			return fmt.Errorf("node %q: %w", n.NodeID, err)
		}

		space.SetValue(id, variant, ua.StatusCode(n.Status))
		if n.EURange != nil {
			space.SetEURange(id, *n.EURange)
		}
	}
	return nil
}

func (v SeedValue) native() interface{} {
	switch v.Type {
	case "int32", "int":
		return v.I32
	case "bool":
		return v.Bool
	case "string":
		return v.Str
	default:
		return v.F64
	}
}

// SeedWatcher reloads a seed file into an address space whenever the file
// is written to on disk, mirroring how a field gateway re-reads its tag
// database after an operator edits it.
type SeedWatcher struct {
	path    string
	space   *addrspace.MemorySpace
	log     zerolog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
}

// NewSeedWatcher creates a watcher for path, bound to space.
func NewSeedWatcher(path string, space *addrspace.MemorySpace, log zerolog.Logger) (*SeedWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &SeedWatcher{
		path:    path,
		space:   space,
		log:     log.With().Str("component", "seed-watcher").Logger(),
		watcher: w,
	}, nil
}

// Start begins watching the seed file's containing directory, applying
// every write immediately. It runs until Stop is called.
func (w *SeedWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.path {
					continue
				}
				if event.Op&fsnotify.Write != fsnotify.Write {
					continue
				}
				w.reload()

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("seed file watch error")
			}
		}
	}()

	return nil
}

func (w *SeedWatcher) reload() {
	seed, err := LoadSeed(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("failed to reload seed file")
		return
	}
	if err := ApplySeed(w.space, seed); err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("failed to apply reloaded seed file")
		return
	}
	w.log.Info().Str("path", w.path).Int("nodes", len(seed.Nodes)).Msg("address space reloaded")
}

// Stop closes the underlying file watcher.
func (w *SeedWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	return w.watcher.Close()
}

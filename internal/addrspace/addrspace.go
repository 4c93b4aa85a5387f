// Package addrspace defines the read-only address-space abstraction the
// monitored-item engine samples against, plus an in-memory implementation
// suitable for tests and the demo binary.
package addrspace

import (
	"sync"
	"time"

	"github.com/gopcua/opcua/ua"
)

// SampledValue is the 4-tuple an attribute read returns.
type SampledValue struct {
	Value           *ua.Variant
	Status          ua.StatusCode
	SourceTimestamp time.Time
	ServerTimestamp time.Time
}

// Node is a single address-space entry exposing attributes by selector.
type Node interface {
	FindAttribute(attr ua.AttributeID) (*SampledValue, bool)
	// EURange returns the engineering-unit range span used for
	// percent-deadband evaluation, when the node has one.
	EURange() (span float64, ok bool)
}

// Space is the read capability the engine depends on: (node id, attribute
// selector) -> optional sampled value. Any storage (in-memory tree, remote,
// synthesized) satisfies it. The engine never mutates it.
//
// FindNode returns (nil, nil) when the node genuinely does not exist in the
// address space — a normal, expected condition the caller logs at debug and
// moves past — and (nil, err) when the backing store itself failed to
// answer the lookup (a connection drop, a timeout, a wedged driver). The
// latter is the condition a circuit breaker wrapping this call needs to
// observe in order to ever trip. MemorySpace below never produces the
// second case, since it has no I/O to fail on; an I/O-backed Space
// implementation is expected to distinguish the two.
type Space interface {
	FindNode(id *ua.NodeID) (Node, error)
}

// MemorySpace is a concrete, in-memory Space backed by a map, used by tests
// and the demo command. It is safe for concurrent reads and for a single
// writer updating node values (e.g. a config-reload watcher).
type MemorySpace struct {
	mu    sync.RWMutex
	nodes map[string]*memoryNode
}

type memoryNode struct {
	mu         sync.RWMutex
	attributes map[ua.AttributeID]*SampledValue
	euRange    float64
	hasEURange bool
}

// NewMemorySpace creates an empty in-memory address space.
func NewMemorySpace() *MemorySpace {
	return &MemorySpace{nodes: make(map[string]*memoryNode)}
}

// FindNode implements Space. It never returns a non-nil error: a
// MemorySpace lookup has no I/O to fail on. A missing node is reported as
// (nil, nil), not an error.
func (s *MemorySpace) FindNode(id *ua.NodeID) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id.String()]
	if !ok {
		return nil, nil
	}
	return n, nil
}

// FindAttribute implements Node.
func (n *memoryNode) FindAttribute(attr ua.AttributeID) (*SampledValue, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	v, ok := n.attributes[attr]
	if !ok {
		return nil, false
	}
	cp := *v
	return &cp, true
}

// EURange implements Node.
func (n *memoryNode) EURange() (float64, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.euRange, n.hasEURange
}

// SetValue creates or updates a node's Value attribute, stamping both
// timestamps to now. It is the write path a config-reload watcher or a
// demo simulator uses to drive changes through the engine.
func (s *MemorySpace) SetValue(id *ua.NodeID, value *ua.Variant, status ua.StatusCode) {
	s.SetAttribute(id, ua.AttributeIDValue, value, status)
}

// SetAttribute creates or updates an arbitrary attribute on a node.
func (s *MemorySpace) SetAttribute(id *ua.NodeID, attr ua.AttributeID, value *ua.Variant, status ua.StatusCode) {
	key := id.String()

	s.mu.Lock()
	n, ok := s.nodes[key]
	if !ok {
		n = &memoryNode{attributes: make(map[ua.AttributeID]*SampledValue)}
		s.nodes[key] = n
	}
	s.mu.Unlock()

	now := time.Now().UTC()

	n.mu.Lock()
	n.attributes[attr] = &SampledValue{
		Value:           value,
		Status:          status,
		SourceTimestamp: now,
		ServerTimestamp: now,
	}
	n.mu.Unlock()
}

// SetEURange sets the EURange span used for percent-deadband evaluation.
func (s *MemorySpace) SetEURange(id *ua.NodeID, span float64) {
	key := id.String()

	s.mu.Lock()
	n, ok := s.nodes[key]
	if !ok {
		n = &memoryNode{attributes: make(map[ua.AttributeID]*SampledValue)}
		s.nodes[key] = n
	}
	s.mu.Unlock()

	n.mu.Lock()
	n.euRange = span
	n.hasEURange = true
	n.mu.Unlock()
}

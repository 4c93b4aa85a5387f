// Package engine implements the OPC UA monitored-item engine: the
// per-subscription, per-attribute state machine that samples address-space
// attributes on a schedule and queues change notifications for a
// subscription driver to drain.
package engine

import (
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
	"github.com/nexus-edge/opcua-subscription-engine/internal/codec"
)

// MinSamplingIntervalMS is the floor a positive sampling interval is
// clamped up to.
const MinSamplingIntervalMS = 0.05

// MaxQueueSize is the ceiling a requested queue capacity is clamped down
// to. Both constants are process-wide and stable across restarts.
const MaxQueueSize = 10

// Target identifies what a monitored item samples: a node and an
// attribute selector on that node.
type Target struct {
	NodeID    *ua.NodeID
	Attribute ua.AttributeID
}

// Notification is the plain record enqueued on a reportable change.
type Notification struct {
	ClientHandle uint32
	SampledValue addrspace.SampledValue
}

// CreateRequest carries everything a client's create-monitored-item
// request provides, ahead of clamping and filter decode.
type CreateRequest struct {
	Target           Target
	Mode             ua.MonitoringMode
	ClientHandle     uint32
	SamplingInterval float64 // requested, milliseconds
	QueueSize        uint32  // requested
	DiscardOldest    bool
	FilterDescriptor *ua.ExtensionObject // nil or null tag => no filter
}

// ModifyRequest carries the subset of parameters a client may revise on an
// existing item.
type ModifyRequest struct {
	SamplingInterval float64
	QueueSize        uint32
	DiscardOldest    bool
	FilterDescriptor *ua.ExtensionObject
}

// MonitoredItem is the sole stateful entity of this package. It is
// exclusively owned by its subscription's tick loop: no synchronization is
// required for the queue or any other field.
type MonitoredItem struct {
	ID               uint32
	Target           Target
	Mode             ua.MonitoringMode
	ClientHandle     uint32
	SamplingInterval float64
	Filter           Filter
	DiscardOldest    bool
	QueueCapacity    uint32

	queue          []Notification // newest-first; index 0 is most recent
	lastSampleTime time.Time
	lastValue      *addrspace.SampledValue
	overflowFlag   bool

	log zerolog.Logger
}

// New constructs a MonitoredItem from a proposed id and a CreateRequest,
// clamping sampling interval and queue capacity and decoding the filter
// descriptor.
func New(id uint32, req CreateRequest, now time.Time, log zerolog.Logger) (*MonitoredItem, error) {
	filter, err := codec.DecodeFilter(req.FilterDescriptor)
	if err != nil {
		return nil, err
	}

	mi := &MonitoredItem{
		ID:               id,
		Target:           req.Target,
		Mode:             req.Mode,
		ClientHandle:     req.ClientHandle,
		SamplingInterval: clampSamplingInterval(req.SamplingInterval),
		Filter:           filter,
		DiscardOldest:    req.DiscardOldest,
		QueueCapacity:    clampQueueSize(req.QueueSize),
		lastSampleTime:   now,
		log:              log.With().Uint32("monitored_item_id", id).Logger(),
	}
	mi.queue = make([]Notification, 0, mi.QueueCapacity)
	return mi, nil
}

func clampSamplingInterval(requested float64) float64 {
	if requested > 0 && requested < MinSamplingIntervalMS {
		return MinSamplingIntervalMS
	}
	// Sentinel values 0 and negative are preserved unchanged.
	return requested
}

func clampQueueSize(requested uint32) uint32 {
	size := requested
	if size < 1 {
		size = 1
	}
	if size > MaxQueueSize {
		size = MaxQueueSize
	}
	return size
}

// Modify re-clamps and re-applies sampling interval, queue capacity,
// discard policy, and filter on an existing item. It does not reset
// last-sample state: pacing and change detection continue from where they
// were.
func (m *MonitoredItem) Modify(req ModifyRequest) error {
	filter, err := codec.DecodeFilter(req.FilterDescriptor)
	if err != nil {
		return err
	}

	m.SamplingInterval = clampSamplingInterval(req.SamplingInterval)
	newCapacity := clampQueueSize(req.QueueSize)
	m.DiscardOldest = req.DiscardOldest
	m.Filter = filter

	if newCapacity < uint32(len(m.queue)) {
		// Shrinking below current occupancy: drop the oldest surplus
		// entries (tail of the newest-first queue) and flag overflow,
		// since data is being discarded the client hasn't drained yet.
		m.queue = m.queue[:newCapacity]
		m.overflowFlag = true
	}
	m.QueueCapacity = newCapacity
	return nil
}

// SetMonitoringMode toggles Disabled/Sampling/Reporting.
func (m *MonitoredItem) SetMonitoringMode(mode ua.MonitoringMode) {
	m.Mode = mode
}

// GetNotificationMessage removes and returns the oldest queued
// notification, or false if the queue is empty. On any successful removal,
// overflowFlag is cleared.
func (m *MonitoredItem) GetNotificationMessage() (Notification, bool) {
	if len(m.queue) == 0 {
		return Notification{}, false
	}

	oldestIdx := len(m.queue) - 1
	n := m.queue[oldestIdx]
	m.queue = m.queue[:oldestIdx]
	m.overflowFlag = false
	return n, true
}

// OverflowFlag reports whether the queue has discarded at least one value
// since the last drain.
func (m *MonitoredItem) OverflowFlag() bool {
	return m.overflowFlag
}

// QueueLength returns the number of notifications currently queued.
func (m *MonitoredItem) QueueLength() int {
	return len(m.queue)
}

// Tick is invoked by the subscription driver with the current wall-clock
// time and a flag indicating whether the owning subscription's publish
// interval has elapsed. It returns true iff a notification was enqueued. A
// non-nil error means the address space itself failed to answer the
// lookup, not merely that the node was absent; the driver's circuit
// breaker observes this error to decide whether to trip.
func (m *MonitoredItem) Tick(space addrspace.Space, now time.Time, subscriptionIntervalElapsed bool) (bool, error) {
	if m.Mode == ua.MonitoringModeDisabled {
		return false, nil
	}

	if !m.shouldSample(now, subscriptionIntervalElapsed) {
		return false, nil
	}

	node, err := space.FindNode(m.Target.NodeID)
	if err != nil {
		return false, err
	}
	if node == nil {
		m.log.Debug().Str("node_id", m.Target.NodeID.String()).Msg("target node not found, no sample")
		return false, nil
	}

	current, ok := node.FindAttribute(m.Target.Attribute)
	if !ok {
		m.log.Debug().Uint32("attribute", uint32(m.Target.Attribute)).Msg("target attribute unavailable, no sample")
		return false, nil
	}

	m.lastSampleTime = now

	changed := m.isReportable(current, node)
	if !changed {
		return false, nil
	}

	m.lastValue = current
	if m.Mode == ua.MonitoringModeSampling {
		// Sampling mode updates last-value state (so subsequent change
		// detection is correct) but never enqueues a notification.
		return false, nil
	}

	m.enqueue(Notification{ClientHandle: m.ClientHandle, SampledValue: *current})
	return true, nil
}

func (m *MonitoredItem) shouldSample(now time.Time, subscriptionIntervalElapsed bool) bool {
	switch {
	case m.SamplingInterval > 0:
		elapsed := now.Sub(m.lastSampleTime)
		return elapsed >= time.Duration(m.SamplingInterval*float64(time.Millisecond))
	case m.SamplingInterval == 0:
		return true
	case m.SamplingInterval < 0:
		return subscriptionIntervalElapsed
	default:
		return m.lastValue == nil
	}
}

func (m *MonitoredItem) isReportable(current *addrspace.SampledValue, node addrspace.Node) bool {
	if m.lastValue == nil {
		return true
	}
	return reportable(m.lastValue, current, m.Filter, node)
}

func (m *MonitoredItem) enqueue(n Notification) {
	if uint32(len(m.queue)) < m.QueueCapacity {
		m.queue = append(m.queue, Notification{})
		copy(m.queue[1:], m.queue[:len(m.queue)-1])
		m.queue[0] = n
		return
	}

	if m.DiscardOldest {
		// Throw away the oldest (tail), shift the rest up, insert newest
		// at index 0.
		copy(m.queue[1:], m.queue[:len(m.queue)-1])
		m.queue[0] = n
	} else {
		// Overwrite the newest slot: the incoming value replaces the most
		// recent, discarding it; the older history is preserved.
		m.queue[0] = n
	}
	m.overflowFlag = true
}

package engine

import (
	"math"

	"github.com/gopcua/opcua/ua"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
	"github.com/nexus-edge/opcua-subscription-engine/internal/codec"
)

// Deadband type codes, per OPC UA Part 8 DeadbandType enumeration. These
// match the wire values gopcua's ua.DataChangeFilter.DeadbandType carries.
const (
	DeadbandNone     = uint32(0)
	DeadbandAbsolute = uint32(1)
	DeadbandPercent  = uint32(2)
)

// Filter is the in-core representation of a monitored item's filter: a
// closed tagged variant, not open-world polymorphism, because the set is
// fixed by the protocol. It is exactly what the codec layer decodes a
// filter descriptor into.
type Filter = codec.Decoded

// DataChangeParams are the decoded parameters of a DataChangeFilter.
type DataChangeParams = codec.DataChangeParams

// FilterNone and FilterDataChange are the two members of the closed
// filter variant. EventFilter is intentionally not a member: event-type
// monitored items are out of scope.
const (
	FilterNone       = codec.FilterNone
	FilterDataChange = codec.FilterDataChange
)

// reportable is the pure predicate deciding whether a change from prior to
// current should be reported, given the item's filter parameters. It is
// stateless and side-effect-free: it never mutates prior, current, or
// node, and its result depends only on its arguments.
func reportable(prior, current *addrspace.SampledValue, filter Filter, node addrspace.Node) bool {
	if filter.Kind == FilterNone {
		return !variantEqual(prior.Value, current.Value)
	}
	return dataChangeReportable(prior, current, filter.DataChange, node)
}

func dataChangeReportable(prior, current *addrspace.SampledValue, p DataChangeParams, node addrspace.Node) bool {
	if prior.Status != current.Status {
		return true
	}
	if p.Trigger == ua.DataChangeTriggerStatus {
		return false
	}

	if !valuesWithinDeadband(prior.Value, current.Value, p, node) {
		return true
	}

	if p.Trigger == ua.DataChangeTriggerStatusValueTimestamp {
		return !prior.SourceTimestamp.Equal(current.SourceTimestamp)
	}
	return false
}

// valuesWithinDeadband returns true when the value change is suppressed by
// the configured deadband (i.e. NOT reportable on value grounds alone).
func valuesWithinDeadband(a, b *ua.Variant, p DataChangeParams, node addrspace.Node) bool {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if !aok || !bok {
		// Non-numeric values ignore deadband: any inequality is reportable.
		return variantEqual(a, b)
	}

	diff := math.Abs(bn - an)

	switch p.DeadbandType {
	case DeadbandAbsolute:
		return diff <= p.DeadbandValue
	case DeadbandPercent:
		span, ok := node.EURange()
		if !ok {
			// EURange unavailable: fall back to absolute comparison.
			return diff <= p.DeadbandValue
		}
		threshold := (p.DeadbandValue / 100.0) * span
		return diff <= threshold
	default:
		return an == bn
	}
}

func toFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.Value().(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func variantEqual(a, b *ua.Variant) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Value() == b.Value()
}

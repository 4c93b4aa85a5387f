package codec

import "errors"

// Creation-time filter decode errors, surfaced to the client as OPC UA
// status codes by the enclosing service.
var (
	// ErrBadFilterNotAllowed is returned when a filter descriptor's tag
	// identifies a type the engine does not support.
	ErrBadFilterNotAllowed = errors.New("opcua: BadFilterNotAllowed")

	// ErrFilterInvalid wraps a filter payload decode failure for a
	// recognized filter tag.
	ErrFilterInvalid = errors.New("opcua: BadMonitoredItemFilterInvalid")
)

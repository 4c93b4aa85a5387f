package engine

import (
	"errors"

	"github.com/nexus-edge/opcua-subscription-engine/internal/codec"
)

// Filter decode errors are owned by the codec package, since decoding
// happens there; re-exported here so callers of engine.New/Modify can
// errors.Is against a single name.
var (
	ErrBadFilterNotAllowed = codec.ErrBadFilterNotAllowed
	ErrFilterInvalid       = codec.ErrFilterInvalid
)

// Driver-level errors. Tick-time conditions are never surfaced as errors:
// a missing node or attribute results in no sample, logged at debug, not
// an error return.
var (
	// ErrUnknownItem is returned by driver operations addressing a
	// monitored item ID that is not registered.
	ErrUnknownItem = errors.New("opcua: monitored item not found")

	// ErrDuplicateItem is returned when creating an item whose ID already
	// exists within the same driver.
	ErrDuplicateItem = errors.New("opcua: monitored item id already exists")
)

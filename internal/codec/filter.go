// Package codec is the seam between the monitored-item engine and the OPC
// UA wire codec (github.com/gopcua/opcua/ua). The engine only ever needs
// the codec to decode a filter payload at creation time; everything else
// about byte-exact OPC UA binary encoding is the wire codec's own concern
// and is treated as an external collaborator.
package codec

import (
	"fmt"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
)

// Deadband type codes duplicated here (rather than imported from
// internal/engine) to keep codec dependency-free of engine; engine.Filter
// construction re-uses the same wire values.
const (
	deadbandNone     uint32 = 0
	deadbandAbsolute uint32 = 1
	deadbandPercent  uint32 = 2
)

// FilterKind is the closed set of filter kinds. It is defined here rather
// than in internal/engine because engine depends on codec, not the
// reverse; engine re-exports its members as engine.FilterNone and
// engine.FilterDataChange.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterDataChange
)

// DataChangeParams are the decoded parameters of a DataChangeFilter.
type DataChangeParams struct {
	Trigger       ua.DataChangeTrigger
	DeadbandType  uint32
	DeadbandValue float64
}

// Decoded is the codec's decode result: a closed tagged variant.
type Decoded struct {
	Kind       FilterKind
	DataChange DataChangeParams
}

// DecodeFilter decodes a monitored-item create/modify request's filter
// descriptor. A nil descriptor, or one whose extension object carries the
// null NodeID, decodes to FilterNone. A descriptor
// tagged with the DataChangeFilter binary encoding id decodes its payload
// into DataChangeParams; any decode failure is fatal to creation. Any
// other tag fails with ErrBadFilterNotAllowed.
//
// In a deployed server the wire codec has already turned the extension
// object's raw bytes into a concrete *ua.DataChangeFilter by the time it
// reaches here (or left Value nil/raw if it didn't recognize the type);
// this function only inspects the tag and, for the one tag it supports,
// type-asserts the already-decoded payload.
func DecodeFilter(ext *ua.ExtensionObject) (Decoded, error) {
	if isNullFilter(ext) {
		return Decoded{Kind: FilterNone}, nil
	}

	if !isDataChangeFilterTag(ext) {
		return Decoded{}, fmt.Errorf("%w: unsupported filter type id %v", ErrBadFilterNotAllowed, extTypeID(ext))
	}

	dcf, ok := ext.Value.(*ua.DataChangeFilter)
	if !ok {
		if v, ok2 := ext.Value.(ua.DataChangeFilter); ok2 {
			dcf = &v
		} else {
			return Decoded{}, fmt.Errorf("%w: extension object tagged DataChangeFilter but payload is %T", ErrFilterInvalid, ext.Value)
		}
	}

	return Decoded{
		Kind: FilterDataChange,
		DataChange: DataChangeParams{
			Trigger:       dcf.Trigger,
			DeadbandType:  dcf.DeadbandType,
			DeadbandValue: dcf.DeadbandValue,
		},
	}, nil
}

func isNullFilter(ext *ua.ExtensionObject) bool {
	if ext == nil || ext.TypeID == nil || ext.TypeID.NodeID == nil {
		return true
	}
	return ext.TypeID.NodeID.IntID() == 0 && ext.TypeID.NodeID.Namespace() == 0
}

func isDataChangeFilterTag(ext *ua.ExtensionObject) bool {
	if ext == nil || ext.TypeID == nil || ext.TypeID.NodeID == nil {
		return false
	}
	return ext.TypeID.NodeID.IntID() == id.DataChangeFilter_Encoding_DefaultBinary
}

func extTypeID(ext *ua.ExtensionObject) string {
	if ext == nil || ext.TypeID == nil {
		return "<nil>"
	}
	return ext.TypeID.String()
}

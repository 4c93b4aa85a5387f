package codec

import (
	"errors"
	"testing"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFilter_NilDescriptorIsFilterNone(t *testing.T) {
	decoded, err := DecodeFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, FilterNone, decoded.Kind)
}

func TestDecodeFilter_NullNodeIDIsFilterNone(t *testing.T) {
	ext := &ua.ExtensionObject{
		TypeID: &ua.ExpandedNodeID{NodeID: ua.NewTwoByteNodeID(0)},
	}
	decoded, err := DecodeFilter(ext)
	require.NoError(t, err)
	assert.Equal(t, FilterNone, decoded.Kind)
}

func TestDecodeFilter_DataChangeFilterDecodesParams(t *testing.T) {
	ext := &ua.ExtensionObject{
		EncodingMask: ua.ExtensionObjectBinary,
		TypeID: &ua.ExpandedNodeID{
			NodeID: ua.NewNumericNodeID(0, id.DataChangeFilter_Encoding_DefaultBinary),
		},
		Value: &ua.DataChangeFilter{
			Trigger:       ua.DataChangeTriggerStatusValue,
			DeadbandType:  1,
			DeadbandValue: 2.5,
		},
	}

	decoded, err := DecodeFilter(ext)
	require.NoError(t, err)
	require.Equal(t, FilterDataChange, decoded.Kind)
	assert.Equal(t, ua.DataChangeTriggerStatusValue, decoded.DataChange.Trigger)
	assert.Equal(t, uint32(1), decoded.DataChange.DeadbandType)
	assert.Equal(t, 2.5, decoded.DataChange.DeadbandValue)
}

func TestDecodeFilter_DataChangeFilterAcceptsValueType(t *testing.T) {
	ext := &ua.ExtensionObject{
		EncodingMask: ua.ExtensionObjectBinary,
		TypeID: &ua.ExpandedNodeID{
			NodeID: ua.NewNumericNodeID(0, id.DataChangeFilter_Encoding_DefaultBinary),
		},
		Value: ua.DataChangeFilter{
			Trigger: ua.DataChangeTriggerStatus,
		},
	}

	decoded, err := DecodeFilter(ext)
	require.NoError(t, err)
	assert.Equal(t, FilterDataChange, decoded.Kind)
}

func TestDecodeFilter_UnsupportedTagFails(t *testing.T) {
	ext := &ua.ExtensionObject{
		EncodingMask: ua.ExtensionObjectBinary,
		TypeID: &ua.ExpandedNodeID{
			NodeID: ua.NewNumericNodeID(0, id.EventFilter_Encoding_DefaultBinary),
		},
		Value: ua.EventFilter{},
	}

	_, err := DecodeFilter(ext)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadFilterNotAllowed))
}

func TestDecodeFilter_WrongPayloadTypeFailsAsInvalid(t *testing.T) {
	ext := &ua.ExtensionObject{
		EncodingMask: ua.ExtensionObjectBinary,
		TypeID: &ua.ExpandedNodeID{
			NodeID: ua.NewNumericNodeID(0, id.DataChangeFilter_Encoding_DefaultBinary),
		},
		Value: "not a filter",
	}

	_, err := DecodeFilter(ext)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilterInvalid))
}

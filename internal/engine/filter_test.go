package engine

import (
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
)

type fakeNode struct {
	span float64
	has  bool
}

func (n fakeNode) FindAttribute(ua.AttributeID) (*addrspace.SampledValue, bool) { return nil, false }
func (n fakeNode) EURange() (float64, bool)                                    { return n.span, n.has }

func sampled(t *testing.T, v interface{}, status ua.StatusCode, ts time.Time) *addrspace.SampledValue {
	t.Helper()
	return &addrspace.SampledValue{
		Value:           variant(t, v),
		Status:          status,
		SourceTimestamp: ts,
		ServerTimestamp: ts,
	}
}

func TestReportable_NoFilterComparesRawEquality(t *testing.T) {
	now := time.Now()
	prior := sampled(t, float64(1), ua.StatusOK, now)
	same := sampled(t, float64(1), ua.StatusOK, now)
	diff := sampled(t, float64(2), ua.StatusOK, now)

	f := Filter{Kind: FilterNone}
	node := fakeNode{}

	assert.False(t, reportable(prior, same, f, node))
	assert.True(t, reportable(prior, diff, f, node))
}

func TestReportable_StatusChangeAlwaysReports(t *testing.T) {
	now := time.Now()
	prior := sampled(t, float64(1), ua.StatusOK, now)
	current := sampled(t, float64(1), ua.StatusCode(0x80000000), now)

	f := Filter{Kind: FilterDataChange, DataChange: DataChangeParams{Trigger: ua.DataChangeTriggerStatusValue}}
	assert.True(t, reportable(prior, current, f, fakeNode{}))
}

func TestReportable_TriggerStatusIgnoresValueChange(t *testing.T) {
	now := time.Now()
	prior := sampled(t, float64(1), ua.StatusOK, now)
	current := sampled(t, float64(99), ua.StatusOK, now)

	f := Filter{Kind: FilterDataChange, DataChange: DataChangeParams{Trigger: ua.DataChangeTriggerStatus}}
	assert.False(t, reportable(prior, current, f, fakeNode{}))
}

func TestReportable_TriggerStatusValueTimestampRequiresTimestampChange(t *testing.T) {
	now := time.Now()
	prior := sampled(t, float64(1), ua.StatusOK, now)
	sameValueLaterTimestamp := sampled(t, float64(1), ua.StatusOK, now.Add(time.Second))

	f := Filter{Kind: FilterDataChange, DataChange: DataChangeParams{Trigger: ua.DataChangeTriggerStatusValueTimestamp}}
	assert.True(t, reportable(prior, sameValueLaterTimestamp, f, fakeNode{}))

	sameValueSameTimestamp := sampled(t, float64(1), ua.StatusOK, now)
	assert.False(t, reportable(prior, sameValueSameTimestamp, f, fakeNode{}))
}

func TestValuesWithinDeadband_Absolute(t *testing.T) {
	a := variant(t, float64(100))
	b := variant(t, float64(104))
	p := DataChangeParams{DeadbandType: DeadbandAbsolute, DeadbandValue: 5}

	assert.True(t, valuesWithinDeadband(a, b, p, fakeNode{}))

	b2 := variant(t, float64(106))
	assert.False(t, valuesWithinDeadband(a, b2, p, fakeNode{}))
}

func TestValuesWithinDeadband_PercentUsesEURange(t *testing.T) {
	a := variant(t, float64(0))
	b := variant(t, float64(4))
	p := DataChangeParams{DeadbandType: DeadbandPercent, DeadbandValue: 10} // 10% of 100 = 10

	assert.True(t, valuesWithinDeadband(a, b, p, fakeNode{span: 100, has: true}))

	b2 := variant(t, float64(20))
	assert.False(t, valuesWithinDeadband(a, b2, p, fakeNode{span: 100, has: true}))
}

func TestValuesWithinDeadband_PercentFallsBackToAbsoluteWithoutEURange(t *testing.T) {
	a := variant(t, float64(0))
	b := variant(t, float64(4))
	p := DataChangeParams{DeadbandType: DeadbandPercent, DeadbandValue: 5}

	assert.True(t, valuesWithinDeadband(a, b, p, fakeNode{has: false}))
}

func TestValuesWithinDeadband_NonNumericIgnoresDeadband(t *testing.T) {
	a := variant(t, "foo")
	b := variant(t, "bar")
	p := DataChangeParams{DeadbandType: DeadbandAbsolute, DeadbandValue: 100}

	require.False(t, valuesWithinDeadband(a, b, p, fakeNode{}))

	same := variant(t, "foo")
	assert.True(t, valuesWithinDeadband(a, same, p, fakeNode{}))
}

func TestReportable_PurityDoesNotMutateInputs(t *testing.T) {
	now := time.Now()
	prior := sampled(t, float64(1), ua.StatusOK, now)
	current := sampled(t, float64(50), ua.StatusOK, now)

	priorCopy := *prior
	currentCopy := *current

	f := Filter{Kind: FilterDataChange, DataChange: DataChangeParams{
		Trigger:       ua.DataChangeTriggerStatusValue,
		DeadbandType:  DeadbandAbsolute,
		DeadbandValue: 1,
	}}

	_ = reportable(prior, current, f, fakeNode{})

	assert.Equal(t, priorCopy.Value.Value(), prior.Value.Value())
	assert.Equal(t, currentCopy.Value.Value(), current.Value.Value())
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
)

func newTestDriver(t *testing.T, space addrspace.Space) *Driver {
	t.Helper()
	return NewDriver(space, DriverConfig{PublishInterval: time.Second}, testLogger())
}

func TestDriver_CreateItemRejectsDuplicateID(t *testing.T) {
	space := addrspace.NewMemorySpace()
	d := newTestDriver(t, space)

	_, err := d.CreateItem(1, baseRequest(t))
	require.NoError(t, err)

	_, err = d.CreateItem(1, baseRequest(t))
	assert.ErrorIs(t, err, ErrDuplicateItem)
}

func TestDriver_DeleteAndModifyUnknownItemReturnErrUnknownItem(t *testing.T) {
	space := addrspace.NewMemorySpace()
	d := newTestDriver(t, space)

	assert.ErrorIs(t, d.DeleteItem(42), ErrUnknownItem)
	assert.ErrorIs(t, d.ModifyItem(42, ModifyRequest{}), ErrUnknownItem)
}

func TestDriver_TickThenDrainYieldsItemsInIDOrder(t *testing.T) {
	space := addrspace.NewMemorySpace()
	id1 := nodeID(t, "ns=2;s=A")
	id2 := nodeID(t, "ns=2;s=B")
	space.SetValue(id1, variant(t, float64(1)), ua.StatusOK)
	space.SetValue(id2, variant(t, float64(1)), ua.StatusOK)

	d := newTestDriver(t, space)

	reqA := baseRequest(t)
	reqA.Target.NodeID = id2
	reqA.SamplingInterval = 0
	_, err := d.CreateItem(5, reqA)
	require.NoError(t, err)

	reqB := baseRequest(t)
	reqB.Target.NodeID = id1
	reqB.SamplingInterval = 0
	_, err = d.CreateItem(2, reqB)
	require.NoError(t, err)

	enqueued := d.Tick(time.Now())
	assert.Equal(t, 2, enqueued)

	drained := d.DrainNotifications(context.Background(), 0)
	require.Len(t, drained, 2)
	assert.Equal(t, uint32(2), drained[0].MonitoredItemID)
	assert.Equal(t, uint32(5), drained[1].MonitoredItemID)
}

func TestDriver_DrainNotificationsRespectsBudget(t *testing.T) {
	space := addrspace.NewMemorySpace()
	id1 := nodeID(t, "ns=2;s=A")
	space.SetValue(id1, variant(t, float64(1)), ua.StatusOK)

	d := newTestDriver(t, space)

	req := baseRequest(t)
	req.Target.NodeID = id1
	req.SamplingInterval = 0
	req.QueueSize = 4
	_, err := d.CreateItem(1, req)
	require.NoError(t, err)

	now := time.Now()
	for i := 1; i <= 3; i++ {
		space.SetValue(id1, variant(t, float64(i)), ua.StatusOK)
		d.Tick(now.Add(time.Duration(i) * time.Millisecond))
	}

	drained := d.DrainNotifications(context.Background(), 2)
	assert.Len(t, drained, 2)
	assert.Equal(t, 1, d.ItemCount())
}

func TestDriver_ItemCountReflectsCreateAndDelete(t *testing.T) {
	space := addrspace.NewMemorySpace()
	d := newTestDriver(t, space)

	_, err := d.CreateItem(1, baseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 1, d.ItemCount())

	require.NoError(t, d.DeleteItem(1))
	assert.Equal(t, 0, d.ItemCount())
}

func TestDriver_LastTickReflectsMostRecentTick(t *testing.T) {
	space := addrspace.NewMemorySpace()
	d := newTestDriver(t, space)

	assert.True(t, d.LastTick().IsZero())

	now := time.Now()
	d.Tick(now)
	assert.WithinDuration(t, now, d.LastTick(), time.Millisecond)
}

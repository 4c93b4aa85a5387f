package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nexus-edge/opcua-subscription-engine/internal/addrspace"
)

// QueuedNotification pairs a drained Notification with the monitored item
// it came from and the info-bit a real publish response would set.
type QueuedNotification struct {
	MonitoredItemID   uint32
	Notification      Notification
	MoreNotifications bool
}

// SampleRecorder receives per-tick counts the driver observes:
// address-space samples taken and queue overflows newly triggered. A
// *metrics.Registry satisfies this without the engine package importing
// metrics directly.
type SampleRecorder interface {
	IncSamplesTaken()
	IncQueueOverflow()
}

// DriverConfig configures a Driver.
type DriverConfig struct {
	// PublishInterval is the owning subscription's publish interval; a
	// driver tick that lands on or after this interval having elapsed
	// sets subscriptionIntervalElapsed for every item ticked in that call.
	PublishInterval time.Duration

	// BreakerName identifies this driver's circuit breaker in logs and
	// metrics.
	BreakerName string

	// Recorder, if non-nil, is notified once per address-space sample
	// taken across all items on a tick.
	Recorder SampleRecorder
}

// Driver is the minimal subscription-driver shim this package exposes: it
// owns a set of monitored items keyed by id, ticks them all each time its
// Tick method is called, and drains notifications for an enclosing publish response. It
// is not a subscription/publish engine: acknowledgement tracking, lifetime
// counters, and revised-rate negotiation belong to the enclosing layer.
type Driver struct {
	config DriverConfig
	space  addrspace.Space
	log    zerolog.Logger

	mu    sync.Mutex
	items map[uint32]*MonitoredItem

	breaker *gobreaker.CircuitBreaker

	lastPublish time.Time
	lastTick    atomic.Value // time.Time
}

// NewDriver creates a Driver bound to one address space. The address
// space is wrapped by a circuit breaker because a real, I/O-backed
// address space's FindNode call is the tick loop's only suspension point;
// a wedged backing store trips the breaker instead of stalling every
// monitored item's tick.
func NewDriver(space addrspace.Space, config DriverConfig, log zerolog.Logger) *Driver {
	if config.PublishInterval <= 0 {
		config.PublishInterval = time.Second
	}
	if config.BreakerName == "" {
		config.BreakerName = "addrspace"
	}

	d := &Driver{
		config: config,
		space:  space,
		log:    log.With().Str("component", "subscription-driver").Logger(),
		items:  make(map[uint32]*MonitoredItem),
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.BreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("address space circuit breaker state change")
		},
	})

	return d
}

// CreateItem constructs and registers a new monitored item under this
// driver, returning ErrDuplicateItem if id is already in use.
func (d *Driver) CreateItem(id uint32, req CreateRequest) (*MonitoredItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.items[id]; exists {
		return nil, ErrDuplicateItem
	}

	item, err := New(id, req, time.Now().UTC(), d.log)
	if err != nil {
		return nil, err
	}

	d.items[id] = item
	return item, nil
}

// DeleteItem removes a monitored item, discarding any undelivered
// notifications. Deletion is synchronous.
func (d *Driver) DeleteItem(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.items[id]; !ok {
		return ErrUnknownItem
	}
	delete(d.items, id)
	return nil
}

// ModifyItem applies a ModifyRequest to an existing monitored item.
func (d *Driver) ModifyItem(id uint32, req ModifyRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	item, ok := d.items[id]
	if !ok {
		return ErrUnknownItem
	}
	return item.Modify(req)
}

// Tick ticks every monitored item in id-ascending order, calling
// item.Tick(addrSpace, now, subscriptionIntervalElapsed) on each. It
// returns the number of items that enqueued a notification on this call.
// Address-space access on each item's behalf runs through the circuit
// breaker; a single open breaker skips sampling for this tick rather than
// blocking the rest of the driver.
func (d *Driver) Tick(now time.Time) int {
	d.lastTick.Store(now)

	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := d.subscriptionIntervalElapsed(now)

	ids := d.sortedIDsLocked()
	enqueued := 0

	for _, id := range ids {
		item := d.items[id]
		wasOverflowed := item.OverflowFlag()
		sampledBefore := item.lastSampleTime

		result, err := d.breaker.Execute(func() (interface{}, error) {
			enqueuedNow, tickErr := item.Tick(d.space, now, elapsed)
			return enqueuedNow, tickErr
		})
		if err != nil {
			d.log.Debug().Err(err).Uint32("monitored_item_id", id).Msg("address space unavailable, skipping sample")
			continue
		}
		// MonitoredItem.Tick advances lastSampleTime only when it read a value.
		if d.config.Recorder != nil && !item.lastSampleTime.Equal(sampledBefore) {
			d.config.Recorder.IncSamplesTaken()
		}
		if result.(bool) {
			enqueued++
			if !wasOverflowed && item.OverflowFlag() && d.config.Recorder != nil {
				d.config.Recorder.IncQueueOverflow()
			}
		}
	}

	if elapsed {
		d.lastPublish = now
	}
	return enqueued
}

func (d *Driver) subscriptionIntervalElapsed(now time.Time) bool {
	if d.lastPublish.IsZero() {
		return true
	}
	return now.Sub(d.lastPublish) >= d.config.PublishInterval
}

func (d *Driver) sortedIDsLocked() []uint32 {
	ids := make([]uint32, 0, len(d.items))
	for id := range d.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DrainNotifications drains queued notifications across all monitored
// items, in id-ascending order and oldest-to-newest within each item, up
// to budget notifications total. A budget <= 0 means unbounded.
func (d *Driver) DrainNotifications(ctx context.Context, budget int) []QueuedNotification {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := d.sortedIDsLocked()
	out := make([]QueuedNotification, 0)

	for _, id := range ids {
		if ctx.Err() != nil {
			return out
		}
		item := d.items[id]
		hadOverflow := item.OverflowFlag()
		for budget <= 0 || len(out) < budget {
			n, ok := item.GetNotificationMessage()
			if !ok {
				break
			}
			out = append(out, QueuedNotification{
				MonitoredItemID:   id,
				Notification:      n,
				MoreNotifications: hadOverflow,
			})
		}
	}

	return out
}

// ItemCount returns the number of monitored items currently registered.
func (d *Driver) ItemCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// LastTick returns the wall-clock time passed to the most recent Tick
// call, or the zero time if Tick has never run.
func (d *Driver) LastTick() time.Time {
	v := d.lastTick.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// BreakerState returns the current state of the address-space circuit
// breaker, for use by health checks.
func (d *Driver) BreakerState() gobreaker.State {
	return d.breaker.State()
}

package services

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/dpup/saferoute/server/internal/lib/hazard"
)

// HazardFeed keeps the latest hazard snapshot from the store and notifies
// subscribers whenever it is replaced
type HazardFeed struct {
	store          hazard.Store
	reconnectDelay time.Duration
	metrics        Metrics

	mu          sync.RWMutex
	latest      hazard.Snapshot
	loaded      bool
	version     uint64
	subscribers map[int]chan struct{}
	nextID      int

	stopChan chan struct{}
	stopOnce sync.Once
	running  bool
}

// NewHazardFeed creates a feed over store. metrics may be nil.
func NewHazardFeed(store hazard.Store, reconnectDelay time.Duration, metrics Metrics) *HazardFeed {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &HazardFeed{
		store:          store,
		reconnectDelay: reconnectDelay,
		metrics:        metrics,
		subscribers:    make(map[int]chan struct{}),
		stopChan:       make(chan struct{}),
	}
}

// Start begins watching the store in the background
func (f *HazardFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	logging.Infow(ctx, "Starting hazard feed", "reconnect_delay", f.reconnectDelay)
	go f.watchLoop(ctx)
}

// Stop ends the watch loop
func (f *HazardFeed) Stop() {
	f.stopOnce.Do(func() { close(f.stopChan) })
}

func (f *HazardFeed) watchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "Hazard feed panic recovered", "error", r, "error.stack_trace", err.MinimalStack(3, 5))
		}
	}()

	for {
		f.watchOnce(ctx)

		select {
		case <-ctx.Done():
			logging.Infow(ctx, "Hazard feed stopping due to context cancellation")
			return
		case <-f.stopChan:
			logging.Infow(ctx, "Hazard feed stopping due to stop signal")
			return
		case <-time.After(f.reconnectDelay):
			logging.Infow(ctx, "Hazard feed reconnecting")
		}
	}
}

// watchOnce consumes one stream until it ends
func (f *HazardFeed) watchOnce(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := f.store.Watch(watchCtx)
	if err != nil {
		logging.Warnw(ctx, "Hazard feed: watch failed", "error", err)
		return
	}

	for {
		select {
		case <-f.stopChan:
			return
		case snap, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					logging.Warnw(ctx, "Hazard feed: stream ended")
				}
				return
			}
			f.publish(snap)
		}
	}
}

// publish replaces the snapshot and wakes every subscriber
func (f *HazardFeed) publish(snap hazard.Snapshot) {
	f.mu.Lock()
	f.latest = snap
	f.loaded = true
	f.version++
	for _, ch := range f.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	f.mu.Unlock()

	f.metrics.SetHazardReports(len(snap))
}

// Latest returns the most recent snapshot and whether one has arrived
func (f *HazardFeed) Latest() (hazard.Snapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.loaded
}

// Version counts published snapshots. A reader that notes the version before
// reading Current can tell whether it missed an update.
func (f *HazardFeed) Version() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// Current returns the latest snapshot, reading the store directly before
// the first update has arrived. Failures yield an empty snapshot.
func (f *HazardFeed) Current(ctx context.Context) hazard.Snapshot {
	if snap, ok := f.Latest(); ok {
		return snap
	}
	snap, err := f.store.Snapshot(ctx)
	if err != nil {
		logging.Warnw(ctx, "Hazard feed: snapshot read failed", "error", err)
		return hazard.Snapshot{}
	}
	return snap
}

// Subscribe returns a channel that receives a signal after every update.
// Signals coalesce: a slow reader sees at most one pending signal. The
// returned func unsubscribes and closes the channel.
func (f *HazardFeed) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subscribers[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, id)
			close(ch)
			f.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions
func (f *HazardFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Package gpustate carries the "GPU state invalidated" notification from the parts of
// the driver that lose GPU state (command flushes, ownership changes) to the rendering
// layer that caches it.
package gpustate

import (
	"sync"

	"github.com/dolthub/swiss"
	"golang.org/x/exp/slices"
)

// Reason says why GPU state can no longer be assumed
type Reason uint32

const (
	// ReasonFlush is published after queued commands were handed to the kernel
	ReasonFlush Reason = iota + 1
	// ReasonOwnershipLost is published when display ownership is released
	ReasonOwnershipLost
	// ReasonOwnershipAcquired is published when display ownership is regained
	ReasonOwnershipAcquired
	// ReasonIdle is published by the idle handler once per iteration
	ReasonIdle
)

var reasonMapping = make(map[Reason]string)

func init() {
	reasonMapping[ReasonFlush] = "ReasonFlush"
	reasonMapping[ReasonOwnershipLost] = "ReasonOwnershipLost"
	reasonMapping[ReasonOwnershipAcquired] = "ReasonOwnershipAcquired"
	reasonMapping[ReasonIdle] = "ReasonIdle"
}

func (r Reason) String() string {
	if name, ok := reasonMapping[r]; ok {
		return name
	}
	return "ReasonUnknown"
}

// Subscriber is called synchronously, on the publishing goroutine
type Subscriber func(reason Reason)

type subscription struct {
	id uint64
	fn Subscriber
}

// Bus delivers invalidation events to every subscriber. The zero value is ready to use
// and a nil *Bus drops events.
type Bus struct {
	mutex       sync.Mutex
	nextID      uint64
	subscribers *swiss.Map[uint64, Subscriber]
	published   uint64
}

// Subscribe registers fn and returns a function that removes it again
func (b *Bus) Subscribe(fn Subscriber) (unsubscribe func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.subscribers == nil {
		b.subscribers = swiss.NewMap[uint64, Subscriber](4)
	}

	id := b.nextID
	b.nextID++
	b.subscribers.Put(id, fn)

	return func() {
		b.mutex.Lock()
		defer b.mutex.Unlock()

		b.subscribers.Delete(id)
	}
}

// Publish delivers reason to every subscriber in subscription order
func (b *Bus) Publish(reason Reason) {
	if b == nil {
		return
	}

	b.mutex.Lock()
	b.published++
	var targets []subscription
	if b.subscribers != nil {
		b.subscribers.Iter(func(id uint64, fn Subscriber) bool {
			targets = append(targets, subscription{id: id, fn: fn})
			return false
		})
	}
	b.mutex.Unlock()

	slices.SortFunc(targets, func(a, b subscription) bool {
		return a.id < b.id
	})
	for _, target := range targets {
		target.fn(reason)
	}
}

// Published returns how many events have been published
func (b *Bus) Published() uint64 {
	if b == nil {
		return 0
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	return b.published
}

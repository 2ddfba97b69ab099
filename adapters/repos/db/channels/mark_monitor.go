//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package channels

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/entities/objectid"
)

// markMonitor is the only garbage collection state shared between
// channels. Channels hand object ids to each other through its queues.
type markMonitor struct {
	mu       sync.Mutex
	channels *objectid.ChannelEvaluator
	enabled  bool
	logger   logrus.FieldLogger

	queues  [][]int64
	signals []chan struct{}

	pendingMarks  int64
	pendingStores []int

	swept          []bool
	collectedRoots []int64
	savedRoots     []int64

	hotComplete  bool
	coldComplete bool
	idle         bool

	cycles          int64
	lastFullRequest int64
}

func newMarkMonitor(channels *objectid.ChannelEvaluator, enabled bool, logger logrus.FieldLogger) *markMonitor {
	n := channels.ChannelCount()
	m := &markMonitor{
		channels: channels,
		enabled:  enabled,
		logger:   logger.WithField("action", "gc_mark_monitor"),
		signals:  make([]chan struct{}, n),
	}
	for i := range m.signals {
		m.signals[i] = make(chan struct{}, 1)
	}
	m.reset()
	return m
}

// reset forgets all collection state. The next cycle starts from the roots
// registered afterwards.
func (m *markMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.channels.ChannelCount()
	m.queues = make([][]int64, n)
	m.pendingMarks = 0
	m.pendingStores = make([]int, n)
	m.swept = make([]bool, n)
	m.collectedRoots = nil
	m.savedRoots = nil
	m.hotComplete = false
	m.coldComplete = false
	m.idle = false
	m.cycles = 0
}

func (m *markMonitor) signal(channel int) <-chan struct{} {
	return m.signals[channel]
}

func (m *markMonitor) notify(channel int) {
	select {
	case m.signals[channel] <- struct{}{}:
	default:
	}
}

func (m *markMonitor) notifyAll() {
	for i := range m.signals {
		m.notify(i)
	}
}

// registerRoots adds the roots a channel found while initializing and
// enqueues them for the first cycle.
func (m *markMonitor) registerRoots(roots []int64) {
	if !m.enabled || len(roots) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.savedRoots = append(m.savedRoots, roots...)
	m.enqueueLocked(roots)
}

func (m *markMonitor) enqueue(ids []int64) {
	if !m.enabled || len(ids) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueueLocked(ids)
}

func (m *markMonitor) enqueueLocked(ids []int64) {
	touched := make(map[int]struct{})
	for _, id := range ids {
		channel := m.channels.ChannelIndex(id)
		m.queues[channel] = append(m.queues[channel], id)
		m.pendingMarks++
		touched[channel] = struct{}{}
	}
	for channel := range touched {
		m.notify(channel)
	}
}

// dequeue hands out up to max queued ids of channel. Every dequeued batch
// has to be acknowledged once its references were enqueued.
func (m *markMonitor) dequeue(channel, max int) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.queues[channel]
	if len(queue) == 0 {
		return nil
	}
	if len(queue) > max {
		queue = queue[:max]
	}
	batch := make([]int64, len(queue))
	copy(batch, queue)
	m.queues[channel] = m.queues[channel][len(batch):]
	return batch
}

func (m *markMonitor) acknowledge(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingMarks -= int64(count)
	if m.markingCompleteLocked() {
		m.notifyAll()
	}
}

func (m *markMonitor) markingCompleteLocked() bool {
	if m.pendingMarks > 0 {
		return false
	}
	for _, pending := range m.pendingStores {
		if pending > 0 {
			return false
		}
	}
	return true
}

// shouldSweep reports whether channel has to sweep now.
func (m *markMonitor) shouldSweep(channel int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled && !m.idle && !m.swept[channel] && m.markingCompleteLocked()
}

// sweepDone records that channel swept this cycle. The last channel to
// sweep advances completion and starts the next cycle if needed.
func (m *markMonitor) sweepDone(channel int, roots []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.swept[channel] = true
	m.collectedRoots = append(m.collectedRoots, roots...)
	for _, swept := range m.swept {
		if !swept {
			return
		}
	}

	m.cycles++
	m.savedRoots = m.collectedRoots
	m.collectedRoots = nil
	for i := range m.swept {
		m.swept[i] = false
	}

	if !m.hotComplete {
		m.hotComplete = true
	} else {
		m.coldComplete = true
	}

	if m.coldComplete {
		m.idle = true
		m.logger.WithField("cycles", m.cycles).Debug("garbage collection complete")
	} else {
		m.enqueueLocked(m.savedRoots)
	}
	m.notifyAll()
}

// registerStore announces a store in progress on channel. Sweeping waits
// until it is completed and collection starts over.
func (m *markMonitor) registerStore(channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingStores[channel]++
	m.restartLocked()
}

func (m *markMonitor) completeStore(channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingStores[channel] > 0 {
		m.pendingStores[channel]--
	}
	if m.markingCompleteLocked() {
		m.notifyAll()
	}
}

// requestFull restarts collection once per requesting task.
func (m *markMonitor) requestFull(timestamp int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if timestamp <= m.lastFullRequest {
		return
	}
	m.lastFullRequest = timestamp
	m.restartLocked()
}

func (m *markMonitor) restartLocked() {
	if !m.enabled {
		return
	}
	m.hotComplete = false
	m.coldComplete = false
	if m.idle {
		m.idle = false
		m.enqueueLocked(m.savedRoots)
		m.notifyAll()
	}
}

// isComplete reports whether the last two cycles found nothing new.
func (m *markMonitor) isComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.enabled || m.coldComplete
}

type GCState struct {
	Enabled      bool  `json:"enabled"`
	HotComplete  bool  `json:"hotComplete"`
	ColdComplete bool  `json:"coldComplete"`
	Idle         bool  `json:"idle"`
	Cycles       int64 `json:"cycles"`
	PendingMarks int64 `json:"pendingMarks"`
}

func (m *markMonitor) state() GCState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return GCState{
		Enabled:      m.enabled,
		HotComplete:  m.hotComplete,
		ColdComplete: m.coldComplete,
		Idle:         m.idle,
		Cycles:       m.cycles,
		PendingMarks: m.pendingMarks,
	}
}

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

package cyclemanager

import (
	"sync"
	"time"
)

// CycleTicker decides when the next cycle runs. CycleExecuted reports
// whether the previous cycle did any work, so adaptive tickers can slow
// down when there is nothing to do.
type CycleTicker interface {
	Start()
	Stop()
	C() <-chan time.Time
	CycleExecuted(executed bool)
}

type fixedTicker struct {
	sync.Mutex
	interval time.Duration
	ticker   *time.Ticker
	ticks    chan time.Time
	done     chan struct{}
}

// NewFixedTicker ticks every interval, no matter what the cycles did. A
// non-positive interval never ticks.
func NewFixedTicker(interval time.Duration) CycleTicker {
	return &fixedTicker{
		interval: interval,
		ticks:    make(chan time.Time),
	}
}

func (t *fixedTicker) Start() {
	t.Lock()
	defer t.Unlock()

	if t.ticker != nil || t.interval <= 0 {
		return
	}
	t.ticker = time.NewTicker(t.interval)
	t.done = make(chan struct{})

	go func(source <-chan time.Time, done <-chan struct{}) {
		for {
			select {
			case <-done:
				return
			case tick := <-source:
				select {
				case t.ticks <- tick:
				case <-done:
					return
				}
			}
		}
	}(t.ticker.C, t.done)
}

func (t *fixedTicker) Stop() {
	t.Lock()
	defer t.Unlock()

	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.done)
	t.ticker = nil
}

func (t *fixedTicker) C() <-chan time.Time {
	return t.ticks
}

func (t *fixedTicker) CycleExecuted(bool) {}

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

package tasks

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var ErrBarrierBroken = errors.New("barrier broken")

// Barrier is a one-shot rendezvous for a fixed number of parties. It is
// either released, once every party arrived, or broken, never both.
type Barrier struct {
	mu       sync.Mutex
	parties  int
	arrived  int
	released chan struct{}
	broken   chan struct{}
	cause    error
}

func NewBarrier(parties int) *Barrier {
	return &Barrier{
		parties:  parties,
		released: make(chan struct{}),
		broken:   make(chan struct{}),
	}
}

// Arrive registers one party. The last arrival releases the barrier unless
// it was broken before.
func (b *Barrier) Arrive() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.arrived++
	if b.arrived == b.parties && b.cause == nil {
		close(b.released)
	}
}

// Wait blocks until the barrier is released or broken. When ctx is done
// first, the barrier is broken with the context error so that no other
// party is released into a state this party did not agree to.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.released:
		return nil
	default:
	}

	select {
	case <-b.released:
		return nil
	case <-b.broken:
		return b.err()
	case <-ctx.Done():
		if b.Break(ctx.Err()) {
			return ctx.Err()
		}
		// released in the meantime
		return nil
	}
}

// Break fails the barrier for every waiting and future party. It returns
// false if the barrier had already been released. Breaking twice keeps the
// first cause.
func (b *Barrier) Break(cause error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isReleasedLocked() {
		return false
	}
	if b.cause == nil {
		if cause == nil {
			cause = errors.New("no cause")
		}
		b.cause = cause
		close(b.broken)
	}
	return true
}

func (b *Barrier) isReleasedLocked() bool {
	select {
	case <-b.released:
		return true
	default:
		return false
	}
}

func (b *Barrier) err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Wrap(ErrBarrierBroken, b.cause.Error())
}

func (b *Barrier) Arrived() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

func (b *Barrier) Parties() int {
	return b.parties
}

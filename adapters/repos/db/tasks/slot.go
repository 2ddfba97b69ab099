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
	"time"

	"github.com/pkg/errors"
)

var ErrNextAlreadySet = errors.New("next task already set")

// Slot holds the successor of a task. It can be filled exactly once; every
// channel worker waiting on it is woken when that happens.
type Slot[C Channel] struct {
	mu    sync.Mutex
	next  Runnable[C]
	ready chan struct{}
}

func (s *Slot[C]) readyLocked() chan struct{} {
	if s.ready == nil {
		s.ready = make(chan struct{})
	}
	return s.ready
}

// SetNext installs next as the successor. A second call fails with
// ErrNextAlreadySet and keeps the successor that was installed first.
func (s *Slot[C]) SetNext(next Runnable[C]) error {
	if next == nil {
		return errors.New("next task must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next != nil {
		return errors.Wrapf(ErrNextAlreadySet, "next is %s@%d", s.next.Kind(), s.next.Timestamp())
	}
	s.next = next
	close(s.readyLocked())
	return nil
}

func (s *Slot[C]) Next() Runnable[C] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// AwaitNext blocks until a successor is installed, timeout elapses or ctx is
// done. ok is false on timeout.
func (s *Slot[C]) AwaitNext(ctx context.Context, timeout time.Duration) (next Runnable[C], ok bool, err error) {
	s.mu.Lock()
	if s.next != nil {
		next = s.next
		s.mu.Unlock()
		return next, true, nil
	}
	ready := s.readyLocked()
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return s.Next(), true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

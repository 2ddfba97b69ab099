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
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CycleCallbackGroup combines several callbacks into one CycleCallback that
// can be handed to a CycleManager.
type CycleCallbackGroup interface {
	Register(id string, active bool, callback CycleCallback) CycleCallbackCtrl
	CycleCallback(shouldAbort ShouldAbortCallback) bool
}

type callbackMeta struct {
	id       string
	callback CycleCallback
	active   bool
	// closed when the current run finishes, nil while idle
	running chan struct{}
}

type cycleCallbackGroup struct {
	sync.Mutex

	logger        logrus.FieldLogger
	groupID       string
	routinesLimit int
	nextKey       uint32
	callbacks     map[uint32]*callbackMeta
}

func NewCallbackGroup(id string, logger logrus.FieldLogger, routinesLimit int) CycleCallbackGroup {
	if routinesLimit < 1 {
		routinesLimit = 1
	}
	return &cycleCallbackGroup{
		logger:        logger,
		groupID:       id,
		routinesLimit: routinesLimit,
		callbacks:     map[uint32]*callbackMeta{},
	}
}

func (g *cycleCallbackGroup) Register(id string, active bool, callback CycleCallback) CycleCallbackCtrl {
	g.Lock()
	defer g.Unlock()

	key := g.nextKey
	g.nextKey++
	g.callbacks[key] = &callbackMeta{id: id, callback: callback, active: active}

	return &callbackCtrl{group: g, key: key, id: id}
}

// CycleCallback runs every active callback, at most routinesLimit at a
// time, in registration order.
func (g *cycleCallbackGroup) CycleCallback(shouldAbort ShouldAbortCallback) bool {
	eg := &errgroup.Group{}
	eg.SetLimit(g.routinesLimit)

	var mu sync.Mutex
	executed := false

	for _, key := range g.keys() {
		if shouldAbort() {
			break
		}
		key := key
		eg.Go(func() error {
			ran := g.run(key, shouldAbort)
			mu.Lock()
			executed = executed || ran
			mu.Unlock()
			return nil
		})
	}

	eg.Wait()
	return executed
}

func (g *cycleCallbackGroup) keys() []uint32 {
	g.Lock()
	defer g.Unlock()

	keys := make([]uint32, 0, len(g.callbacks))
	for key := range g.callbacks {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}

func (g *cycleCallbackGroup) run(key uint32, shouldAbort ShouldAbortCallback) (executed bool) {
	g.Lock()
	meta, ok := g.callbacks[key]
	if !ok || !meta.active || shouldAbort() {
		g.Unlock()
		return false
	}
	running := make(chan struct{})
	meta.running = running
	g.Unlock()

	defer func() {
		if r := recover(); r != nil {
			g.logger.WithFields(logrus.Fields{
				"action":      "cyclemanager",
				"callback_id": meta.id,
				"group_id":    g.groupID,
			}).Errorf("callback panic: %v", r)
			executed = false
		}
		g.Lock()
		meta.running = nil
		g.Unlock()
		close(running)
	}()

	return meta.callback(shouldAbort)
}

// whenIdle calls fn under the group lock once the callback is not running,
// or returns ctx.Err() if ctx ends first.
func (g *cycleCallbackGroup) whenIdle(ctx context.Context, key uint32,
	fn func(meta *callbackMeta, found bool) error,
) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		g.Lock()
		meta, ok := g.callbacks[key]
		if !ok || meta.running == nil {
			err := fn(meta, ok)
			g.Unlock()
			return err
		}
		running := meta.running
		g.Unlock()

		select {
		case <-running:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (g *cycleCallbackGroup) unregister(ctx context.Context, key uint32) error {
	return g.whenIdle(ctx, key, func(_ *callbackMeta, found bool) error {
		if found {
			delete(g.callbacks, key)
		}
		return nil
	})
}

func (g *cycleCallbackGroup) deactivate(ctx context.Context, key uint32) error {
	return g.whenIdle(ctx, key, func(meta *callbackMeta, found bool) error {
		if !found {
			return ErrCallbackNotFound
		}
		meta.active = false
		return nil
	})
}

func (g *cycleCallbackGroup) activate(key uint32) error {
	g.Lock()
	defer g.Unlock()

	meta, ok := g.callbacks[key]
	if !ok {
		return ErrCallbackNotFound
	}
	meta.active = true
	return nil
}

func (g *cycleCallbackGroup) isActive(key uint32) bool {
	g.Lock()
	defer g.Unlock()

	meta, ok := g.callbacks[key]
	return ok && meta.active
}

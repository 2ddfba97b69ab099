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

	"github.com/pkg/errors"
)

var ErrCallbackNotFound = errors.New("callback not found")

// CycleCallbackCtrl controls a single registered callback. Deactivate and
// Unregister wait for a running invocation to finish.
type CycleCallbackCtrl interface {
	IsActive() bool
	Activate() error
	Deactivate(ctx context.Context) error
	Unregister(ctx context.Context) error
}

type callbackCtrl struct {
	group *cycleCallbackGroup
	key   uint32
	id    string
}

func (c *callbackCtrl) IsActive() bool {
	return c.group.isActive(c.key)
}

func (c *callbackCtrl) Activate() error {
	return c.wrap("activate", c.group.activate(c.key))
}

func (c *callbackCtrl) Deactivate(ctx context.Context) error {
	return c.wrap("deactivate", c.group.deactivate(ctx, c.key))
}

func (c *callbackCtrl) Unregister(ctx context.Context) error {
	return c.wrap("unregister", c.group.unregister(ctx, c.key))
}

func (c *callbackCtrl) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "%s callback %q of %q", op, c.id, c.group.groupID)
}

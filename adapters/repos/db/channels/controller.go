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

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNotRunning = errors.New("storage is not running")

// operationController decides whether new tasks are accepted. A channel
// failing its housekeeping disrupts the whole storage.
type operationController struct {
	mu          sync.Mutex
	running     bool
	disruptions *multierror.Error
	logger      logrus.FieldLogger
}

func newOperationController(logger logrus.FieldLogger) *operationController {
	return &operationController{logger: logger.WithField("action", "operation_controller")}
}

func (c *operationController) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.disruptions = nil
}

func (c *operationController) deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *operationController) checkRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkRunningLocked()
}

func (c *operationController) checkRunningLocked() error {
	if c.running {
		return nil
	}
	if c.disruptions != nil {
		return errors.Wrapf(ErrNotRunning, "disrupted: %v", c.disruptions)
	}
	return ErrNotRunning
}

func (c *operationController) registerDisruption(channel int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.disruptions = multierror.Append(c.disruptions, errors.Wrapf(err, "channel %d", channel))
	c.logger.WithField("channel", channel).WithError(err).
		Error("storage disrupted, no further tasks are accepted")
}

func (c *operationController) disruption() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disruptions.ErrorOrNil()
}

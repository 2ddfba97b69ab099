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

package storagestate

import (
	"fmt"
	"sync"
)

// Capabilities are the individually switchable write permissions.
type Capabilities struct {
	Writing     bool
	FileCleanup bool
	Deletion    bool
	Backup      bool
}

func AllCapabilities() Capabilities {
	return Capabilities{Writing: true, FileCleanup: true, Deletion: true, Backup: true}
}

// WriteController decides whether operations modifying the storage medium
// may run. Switching to read-only revokes every capability in one step,
// switching back restores the configured ones.
type WriteController struct {
	sync.RWMutex
	status     Status
	configured Capabilities
}

func NewWriteController(configured Capabilities) *WriteController {
	return &WriteController{status: StatusReady, configured: configured}
}

func (c *WriteController) Status() Status {
	c.RLock()
	defer c.RUnlock()
	return c.status
}

func (c *WriteController) SetStatus(status Status) {
	c.Lock()
	defer c.Unlock()
	c.status = status
}

func (c *WriteController) SetReadOnly(readOnly bool) {
	if readOnly {
		c.SetStatus(StatusReadOnly)
		return
	}
	c.SetStatus(StatusReady)
}

// Capabilities returns a consistent snapshot of what is currently allowed.
func (c *WriteController) Capabilities() Capabilities {
	c.RLock()
	defer c.RUnlock()
	if c.status == StatusReadOnly {
		return Capabilities{}
	}
	return c.configured
}

func (c *WriteController) ValidateIsWritable() error {
	return c.validate(func(caps Capabilities) bool { return caps.Writing }, ErrWritingDisabled)
}

func (c *WriteController) ValidateIsFileCleanupEnabled() error {
	return c.validate(func(caps Capabilities) bool { return caps.FileCleanup }, ErrFileCleanupDisabled)
}

func (c *WriteController) ValidateIsDeletionEnabled() error {
	return c.validate(func(caps Capabilities) bool { return caps.Deletion }, ErrDeletionDisabled)
}

func (c *WriteController) ValidateIsBackupEnabled() error {
	return c.validate(func(caps Capabilities) bool { return caps.Backup }, ErrBackupDisabled)
}

func (c *WriteController) IsWritable() bool          { return c.ValidateIsWritable() == nil }
func (c *WriteController) IsFileCleanupEnabled() bool { return c.ValidateIsFileCleanupEnabled() == nil }
func (c *WriteController) IsDeletionEnabled() bool    { return c.ValidateIsDeletionEnabled() == nil }
func (c *WriteController) IsBackupEnabled() bool      { return c.ValidateIsBackupEnabled() == nil }

func (c *WriteController) validate(allowed func(Capabilities) bool, disabled error) error {
	c.RLock()
	defer c.RUnlock()

	if c.status == StatusReadOnly {
		return fmt.Errorf("%w: %w", disabled, ErrStatusReadOnly)
	}
	if !allowed(c.configured) {
		return disabled
	}
	return nil
}

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

package config

import (
	"fmt"
)

var ErrReadOnlyModeEnabled = fmt.Errorf("read-only mode is enabled at the config level: write operations are not allowed")

const (
	READ_WRITE = "ReadWrite"
	READ_ONLY  = "ReadOnly"
)

func ValidateOperationalMode(mode string) error {
	switch mode {
	case READ_WRITE, READ_ONLY:
		return nil
	default:
		return fmt.Errorf("operational_mode must be %q or %q, got %q", READ_WRITE, READ_ONLY, mode)
	}
}

// IsReadOnly reports whether the storage must be started without writing.
func (c Config) IsReadOnly() bool {
	return c.OperationalMode == READ_ONLY
}

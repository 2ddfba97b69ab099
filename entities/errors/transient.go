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

package errors

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	OutOfMemory = errors.New("not enough memory")
	Temporary   = errors.New("temporarily unavailable")
)

// IsTransient reports whether retrying the failed operation later may
// succeed without any intervention.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, OutOfMemory) || errors.Is(err, Temporary) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN, syscall.EINTR, syscall.EBUSY:
			return true
		}
	}

	return false
}

func NewOutOfMemory(msg string) error {
	return fmt.Errorf("%s: %w", msg, OutOfMemory)
}

func NewTemporary(msg string) error {
	return fmt.Errorf("%s: %w", msg, Temporary)
}

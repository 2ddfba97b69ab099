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
	"fmt"
	"os"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	entcfg "github.com/weaviate/chanstore/entities/config"
)

const disableRecoveryEnv = "DISABLE_RECOVERY_ON_PANIC"

// GoWrapper starts f in its own goroutine. A panic inside f is logged
// instead of taking the whole process down, unless recovery was disabled
// through the environment.
func GoWrapper(f func(), logger logrus.FieldLogger) {
	go func() {
		defer func() {
			if entcfg.Enabled(os.Getenv(disableRecoveryEnv)) {
				return
			}
			if r := recover(); r != nil {
				logger.WithField("stack", string(debug.Stack())).
					Errorf("Recovered from panic: %v", r)
			}
		}()
		f()
	}()
}

// RecoverAsError converts a recovered panic value into an error. It is meant
// to be called from a deferred function right after recover().
func RecoverAsError(r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic occurred: %w", err)
	}
	return fmt.Errorf("panic occurred: %v", r)
}

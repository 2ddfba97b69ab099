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

import "sync"

// Once is a cell that accepts a value exactly once. Racing installers all
// learn whether they won.
type Once[T any] struct {
	mu    sync.Mutex
	set   bool
	value T
}

// Install stores v if the cell is still empty and reports whether it did.
func (o *Once[T]) Install(v T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.set {
		return false
	}
	o.value = v
	o.set = true
	return true
}

func (o *Once[T]) Get() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.set
}

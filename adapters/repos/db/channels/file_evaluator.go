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
	"github.com/pkg/errors"
)

type FileEvaluator struct {
	MinimumSize     int64   `json:"minimumSize" yaml:"minimumSize"`
	MaximumSize     int64   `json:"maximumSize" yaml:"maximumSize"`
	MinimumUseRatio float64 `json:"minimumUseRatio" yaml:"minimumUseRatio"`
	// CleanUpHeadFile recycles a head file that holds no live data anymore.
	CleanUpHeadFile bool `json:"cleanUpHeadFile" yaml:"cleanUpHeadFile"`
}

func DefaultFileEvaluator() FileEvaluator {
	return FileEvaluator{
		MinimumSize:     DefaultFileMinimumSize,
		MaximumSize:     DefaultFileMaximumSize,
		MinimumUseRatio: DefaultMinimumUseRatio,
		CleanUpHeadFile: true,
	}
}

func (ev FileEvaluator) Validate() error {
	if ev.MinimumSize <= 0 || ev.MaximumSize <= 0 {
		return errors.Errorf("file sizes must be positive, got minimum %d and maximum %d",
			ev.MinimumSize, ev.MaximumSize)
	}
	if ev.MinimumSize > ev.MaximumSize {
		return errors.Errorf("file minimum size %d exceeds maximum size %d",
			ev.MinimumSize, ev.MaximumSize)
	}
	if ev.MinimumUseRatio <= 0 || ev.MinimumUseRatio > 1 {
		return errors.Errorf("minimum use ratio must be within (0, 1], got %v", ev.MinimumUseRatio)
	}
	return nil
}

// needsNewHead reports whether stores should move on to a fresh file.
func (ev FileEvaluator) needsNewHead(head *dataFile) bool {
	return head.total >= ev.MaximumSize
}

// needsRecycling reports whether the head file only holds dead data.
func (ev FileEvaluator) needsRecycling(head *dataFile) bool {
	return ev.CleanUpHeadFile && head.total > 0 && head.count == 0
}

// needsDissolving decides for files other than the head file whether their
// live entities are moved to the head file so the file can be deleted.
func (ev FileEvaluator) needsDissolving(f *dataFile) bool {
	if f.count == 0 {
		return true
	}
	if f.total < ev.MinimumSize {
		return true
	}
	// a single entity larger than the maximum would only bounce between files
	if f.total > ev.MaximumSize && f.count > 1 {
		return true
	}
	return f.useRatio() < ev.MinimumUseRatio
}

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

package objectid

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
)

// The id space is split into three consecutive ranges.
const (
	TypeIDBase     int64 = 0
	ObjectIDBase   int64 = 1_000_000_000_000_000_000
	ConstantIDBase int64 = 9_000_000_000_000_000_000

	MaxChannelCount = 1024
)

var ErrInvalidChannelCount = errors.New("invalid channel count")

func IsTypeID(id int64) bool {
	return id >= TypeIDBase && id < ObjectIDBase
}

func IsObjectID(id int64) bool {
	return id >= ObjectIDBase && id < ConstantIDBase
}

func IsConstantID(id int64) bool {
	return id >= ConstantIDBase
}

// ValidateChannelCount requires a power of two within [1, MaxChannelCount],
// so that channel selection can be done by masking.
func ValidateChannelCount(channelCount int) error {
	if channelCount < 1 || channelCount > MaxChannelCount {
		return fmt.Errorf("%w: %d is not within [1, %d]",
			ErrInvalidChannelCount, channelCount, MaxChannelCount)
	}
	if bits.OnesCount(uint(channelCount)) != 1 {
		return fmt.Errorf("%w: %d is not a power of two", ErrInvalidChannelCount, channelCount)
	}
	return nil
}

// ChannelEvaluator maps an object id to the index of the channel owning it.
type ChannelEvaluator struct {
	channelCount int
	mask         int64
}

func NewChannelEvaluator(channelCount int) (*ChannelEvaluator, error) {
	if err := ValidateChannelCount(channelCount); err != nil {
		return nil, err
	}
	return &ChannelEvaluator{
		channelCount: channelCount,
		mask:         int64(channelCount - 1),
	}, nil
}

func (e *ChannelEvaluator) ChannelCount() int {
	return e.channelCount
}

func (e *ChannelEvaluator) ChannelIndex(objectID int64) int {
	return int(objectID & e.mask)
}

// RangeEvaluator is informed about object id ranges entering the storage
// outside of the regular id provider, e.g. through an import.
type RangeEvaluator interface {
	EvaluateObjectIDRange(lower, upper int64)
}

// HighWaterMark is a RangeEvaluator remembering the highest object id seen.
type HighWaterMark struct {
	highest atomic.Int64
}

func NewHighWaterMark(initial int64) *HighWaterMark {
	h := &HighWaterMark{}
	h.highest.Store(initial)
	return h
}

func (h *HighWaterMark) EvaluateObjectIDRange(_, upper int64) {
	h.Raise(upper)
}

// Raise moves the mark up to id if id is higher.
func (h *HighWaterMark) Raise(id int64) {
	for {
		current := h.highest.Load()
		if id <= current {
			return
		}
		if h.highest.CompareAndSwap(current, id) {
			return
		}
	}
}

func (h *HighWaterMark) Current() int64 {
	return h.highest.Load()
}

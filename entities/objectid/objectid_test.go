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
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRanges(t *testing.T) {
	assert.True(t, IsTypeID(0))
	assert.True(t, IsTypeID(ObjectIDBase-1))
	assert.False(t, IsTypeID(ObjectIDBase))

	assert.True(t, IsObjectID(ObjectIDBase))
	assert.True(t, IsObjectID(ConstantIDBase-1))
	assert.False(t, IsObjectID(ConstantIDBase))

	assert.True(t, IsConstantID(ConstantIDBase))
	assert.True(t, IsConstantID(math.MaxInt64))
	assert.False(t, IsConstantID(-1))
}

func TestValidateChannelCount(t *testing.T) {
	for _, valid := range []int{1, 2, 4, 64, 1024} {
		assert.NoError(t, ValidateChannelCount(valid), valid)
	}
	for _, invalid := range []int{0, -2, 3, 6, 100, 2048} {
		assert.ErrorIs(t, ValidateChannelCount(invalid), ErrInvalidChannelCount, invalid)
	}
}

func TestChannelEvaluator(t *testing.T) {
	ev, err := NewChannelEvaluator(4)
	require.NoError(t, err)

	assert.Equal(t, 4, ev.ChannelCount())
	assert.Equal(t, 0, ev.ChannelIndex(ObjectIDBase))
	assert.Equal(t, 1, ev.ChannelIndex(ObjectIDBase+1))
	assert.Equal(t, 3, ev.ChannelIndex(ObjectIDBase+7))

	_, err = NewChannelEvaluator(3)
	assert.ErrorIs(t, err, ErrInvalidChannelCount)
}

func TestHighWaterMark(t *testing.T) {
	h := NewHighWaterMark(ObjectIDBase)

	wg := sync.WaitGroup{}
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			h.EvaluateObjectIDRange(ObjectIDBase, ObjectIDBase+i)
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, ObjectIDBase+50, h.Current())

	h.Raise(ObjectIDBase + 10)
	assert.Equal(t, ObjectIDBase+50, h.Current())
}

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
	"encoding/binary"
	"time"
)

type color uint8

const (
	white color = iota
	gray
	black
)

func (c color) String() string {
	switch c {
	case white:
		return "white"
	case gray:
		return "gray"
	default:
		return "black"
	}
}

// entity is the cache record of one stored object. It is owned by a single
// channel and only ever touched by that channel's worker.
type entity struct {
	objectID int64
	typeID   int64
	length   int64

	file     *dataFile
	position int64

	references []int64
	// data holds the complete record including its header, nil when evicted
	data []byte

	lastTouched time.Time
	color       color
}

func (e *entity) cachedLength() int64 {
	return int64(len(e.data))
}

func (e *entity) hasReferences() bool {
	return len(e.references) > 0
}

// ReferenceExtractor finds the object ids an entity's content refers to.
type ReferenceExtractor interface {
	References(typeID int64, content []byte) []int64
}

// DenseReferenceExtractor reads the content of the configured types as a
// dense array of little endian object ids. Null references are skipped.
type DenseReferenceExtractor struct {
	types map[int64]struct{}
}

func NewDenseReferenceExtractor(typeIDs ...int64) *DenseReferenceExtractor {
	types := make(map[int64]struct{}, len(typeIDs))
	for _, id := range typeIDs {
		types[id] = struct{}{}
	}
	return &DenseReferenceExtractor{types: types}
}

func (x *DenseReferenceExtractor) References(typeID int64, content []byte) []int64 {
	if _, ok := x.types[typeID]; !ok {
		return nil
	}
	var refs []int64
	for off := 0; off+8 <= len(content); off += 8 {
		if id := int64(binary.LittleEndian.Uint64(content[off:])); id != 0 {
			refs = append(refs, id)
		}
	}
	return refs
}

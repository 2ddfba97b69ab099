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

package importer

// Entity is one validated record inside a source.
type Entity struct {
	// Offset of the record within its source.
	Offset   int64
	Length   int64
	TypeID   int64
	ObjectID int64
}

// Batch is a run of contiguous records of one source that all belong to the
// same channel. A batch always has a first entity, Rest holds the others.
type Batch struct {
	Channel int
	Offset  int64
	Length  int64
	First   Entity
	Rest    []Entity
}

func newBatch(channel int, e Entity) *Batch {
	return &Batch{
		Channel: channel,
		Offset:  e.Offset,
		Length:  e.Length,
		First:   e,
	}
}

func (b *Batch) add(e Entity) {
	b.Rest = append(b.Rest, e)
	b.Length += e.Length
}

func (b *Batch) Count() int {
	return 1 + len(b.Rest)
}

// Each calls fn for every entity in source order.
func (b *Batch) Each(fn func(e Entity)) {
	fn(b.First)
	for _, e := range b.Rest {
		fn(e)
	}
}

// MaxObjectID is the highest object id in the batch.
func (b *Batch) MaxObjectID() int64 {
	highest := b.First.ObjectID
	for _, e := range b.Rest {
		if e.ObjectID > highest {
			highest = e.ObjectID
		}
	}
	return highest
}

// SourceSlice is the part of one source that belongs to one channel. Data
// is the complete source content, batches address it by offset.
type SourceSlice struct {
	Source  string
	Data    []byte
	Batches []Batch
}

func (s SourceSlice) Length() int64 {
	var n int64
	for _, b := range s.Batches {
		n += b.Length
	}
	return n
}

// SourceReport summarizes the scan of one source.
type SourceReport struct {
	Source   string
	Bytes    int64
	Batches  int
	Entities int
	// Fault is the validation error that stopped the scan, nil if the whole
	// source was valid.
	Fault error
	// FaultOffset is where the invalid region starts.
	FaultOffset int64
}

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

// Package entityheader contains the fixed record envelope every persisted
// entity starts with, and the evaluator deciding whether a byte region may be
// trusted as such an envelope.
//
// Layout (little endian):
//
//	[0:8)   length   total record length including the header
//	[8:16)  typeId
//	[16:24) objectId
//
// A negative length marks a gap of -length bytes that carries no entity.
package entityheader

import (
	"encoding/binary"
)

const (
	LengthOffset   = 0
	TypeIDOffset   = 8
	ObjectIDOffset = 16

	// Length is the number of bytes occupied by the header.
	Length = 24

	// GapHeaderLength is the minimum size of a gap record, which only
	// carries the negative length field.
	GapHeaderLength = 8
)

type Header struct {
	Length   int64
	TypeID   int64
	ObjectID int64
}

// ContentLength is the number of bytes following the header.
func (h Header) ContentLength() int64 {
	return h.Length - Length
}

// Put writes the header into the first Length bytes of buf.
func (h Header) Put(buf []byte) {
	_ = buf[Length-1]
	binary.LittleEndian.PutUint64(buf[LengthOffset:], uint64(h.Length))
	binary.LittleEndian.PutUint64(buf[TypeIDOffset:], uint64(h.TypeID))
	binary.LittleEndian.PutUint64(buf[ObjectIDOffset:], uint64(h.ObjectID))
}

// Append appends the encoded header to dst.
func (h Header) Append(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.Length))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.TypeID))
	return binary.LittleEndian.AppendUint64(dst, uint64(h.ObjectID))
}

// Read decodes the header at the start of buf. It does not validate
// anything beyond the buffer being large enough.
func Read(buf []byte) (Header, bool) {
	if len(buf) < Length {
		return Header{}, false
	}
	return Header{
		Length:   ReadLength(buf),
		TypeID:   int64(binary.LittleEndian.Uint64(buf[TypeIDOffset:])),
		ObjectID: int64(binary.LittleEndian.Uint64(buf[ObjectIDOffset:])),
	}, true
}

// ReadLength decodes only the length field. buf must hold at least 8 bytes.
func ReadLength(buf []byte) int64 {
	return int64(binary.LittleEndian.Uint64(buf[LengthOffset:]))
}

// NewRecord builds a complete record from its type, object id and content.
func NewRecord(typeID, objectID int64, content []byte) []byte {
	rec := make([]byte, 0, Length+len(content))
	rec = Header{
		Length:   int64(Length + len(content)),
		TypeID:   typeID,
		ObjectID: objectID,
	}.Append(rec)
	return append(rec, content...)
}

// AppendGap appends a gap record spanning size bytes. size must be at least
// GapHeaderLength.
func AppendGap(dst []byte, size int) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(-int64(size)))
	return append(dst, make([]byte, size-GapHeaderLength)...)
}

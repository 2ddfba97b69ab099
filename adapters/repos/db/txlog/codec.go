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

package txlog

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Append encodes e at the end of dst.
func (e Entry) Append(dst []byte) []byte {
	n := e.Type.EncodedLength()
	if n == 0 {
		// callers only build entries through the constructors
		panic(errors.Errorf("encode %s", e.Type))
	}

	dst = append(dst, byte(n), byte(e.Type))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Timestamp))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Length))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.FileNumber))
	if n == longEntryLength {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Special))
	}
	return dst
}

// AppendGap appends a gap of size bytes that readers skip. size must be in
// [2, MaxGapLength].
func AppendGap(dst []byte, size int) []byte {
	if size < 2 || size > MaxGapLength {
		panic(errors.Errorf("invalid gap size %d", size))
	}
	dst = append(dst, byte(int8(-size)))
	return append(dst, make([]byte, size-1)...)
}

// Encode encodes all entries into a single buffer.
func Encode(entries ...Entry) []byte {
	buf := make([]byte, 0, len(entries)*longEntryLength)
	for _, e := range entries {
		buf = e.Append(buf)
	}
	return buf
}

// errTornTail signals a trailing partial entry, it never leaves the package.
var errTornTail = errors.New("torn tail")

// decode reads the entry or gap at the start of buf. It returns the number
// of bytes consumed and ok=false for gaps.
func decode(buf []byte) (e Entry, n int, ok bool, err error) {
	length := int8(buf[0])
	switch {
	case length < 0:
		n = -int(length)
		if n > len(buf) {
			return e, 0, false, errTornTail
		}
		return e, n, false, nil
	case length == 0:
		return e, 0, false, ErrZeroLengthEntry
	}

	if len(buf) < 2 {
		return e, 0, false, errTornTail
	}
	t := EntryType(buf[1])
	expected := t.EncodedLength()
	if expected == 0 {
		return e, 0, false, errors.Wrapf(ErrUnknownEntryType, "type %d", uint8(t))
	}
	n = int(length)
	if n != expected {
		return e, 0, false, errors.Wrapf(ErrEntryLengthMismatch,
			"%s declares %d bytes, expected %d", t, n, expected)
	}
	if n > len(buf) {
		return e, 0, false, errTornTail
	}

	e.Type = t
	e.Timestamp = int64(binary.LittleEndian.Uint64(buf[2:10]))
	e.Length = int64(binary.LittleEndian.Uint64(buf[10:18]))
	e.FileNumber = int64(binary.LittleEndian.Uint64(buf[18:26]))
	if n == longEntryLength {
		e.Special = int64(binary.LittleEndian.Uint64(buf[26:34]))
	}
	return e, n, true, nil
}

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

package entityheader

import (
	"github.com/pkg/errors"
)

// RecordFunc receives every valid record found by Iterate. record spans
// the whole entity including its header. Returning an error stops iteration.
type RecordFunc func(offset int64, h Header, record []byte) error

// GapFunc is notified about skipped gaps, it may be nil.
type GapFunc func(offset, length int64)

// Iterate walks the records in buf. It stops at the first region that is
// neither a valid record nor a well-formed gap and returns the offset of that
// region together with a *HeaderError. On success the returned offset equals
// len(buf).
func (e *Evaluator) Iterate(buf []byte, onRecord RecordFunc, onGap GapFunc) (int64, error) {
	var offset int64
	size := int64(len(buf))

	for offset < size {
		window := buf[offset:]
		if len(window) >= GapHeaderLength {
			if length := ReadLength(window); length < 0 {
				gap := -length
				if gap < GapHeaderLength || gap > int64(len(window)) {
					return offset, &HeaderError{
						Kind:      ErrEntityTruncated,
						Header:    Header{Length: length},
						Available: int64(len(window)),
					}
				}
				if onGap != nil {
					onGap(offset, gap)
				}
				offset += gap
				continue
			}
		}

		h, err := e.ValidateAt(window)
		if err != nil {
			return offset, err
		}
		if err := onRecord(offset, h, window[:h.Length]); err != nil {
			return offset, errors.Wrapf(err, "record at offset %d", offset)
		}
		offset += h.Length
	}

	return offset, nil
}

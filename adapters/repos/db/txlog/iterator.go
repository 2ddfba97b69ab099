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
	"github.com/pkg/errors"
)

type EntryFunc func(offset int64, e Entry) error

// Iterate walks all entries in buf, skipping gaps, and calls fn for each.
// It returns the length of the consistent prefix of buf: anything past it is
// a torn tail left behind by an interrupted append. A malformed entry stops
// the iteration with an error, as does an error returned by fn.
func Iterate(buf []byte, fn EntryFunc) (int64, error) {
	offset := 0
	for offset < len(buf) {
		e, n, ok, err := decode(buf[offset:])
		if err != nil {
			if errors.Is(err, errTornTail) {
				return int64(offset), nil
			}
			return int64(offset), errors.Wrapf(err, "entry at offset %d", offset)
		}
		if ok {
			if err := fn(int64(offset), e); err != nil {
				return int64(offset), err
			}
		}
		offset += n
	}
	return int64(offset), nil
}

// Decode returns all entries of buf together with the consistent length.
func Decode(buf []byte) ([]Entry, int64, error) {
	var entries []Entry
	consistent, err := Iterate(buf, func(_ int64, e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, consistent, err
}

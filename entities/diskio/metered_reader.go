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

package diskio

import (
	"io"
	"time"
)

type MeteredReaderCallback func(read int64, nanoseconds int64)

type MeteredReader struct {
	r  io.Reader
	cb MeteredReaderCallback
}

func (m *MeteredReader) Read(p []byte) (n int, err error) {
	start := time.Now()
	n, err = m.r.Read(p)
	took := time.Since(start).Nanoseconds()

	// a final read may return data together with io.EOF
	if n > 0 && m.cb != nil {
		m.cb(int64(n), took)
	}

	return
}

func NewMeteredReader(r io.Reader, cb MeteredReaderCallback) *MeteredReader {
	return &MeteredReader{r: r, cb: cb}
}

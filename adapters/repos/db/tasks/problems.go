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

package tasks

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ProblemsError is returned by Wait when at least one channel registered a
// problem. The operation ran, and failed on the listed channels.
type ProblemsError struct {
	Kind Kind
	// Problems is indexed by channel, nil entries had no problem.
	Problems []error
}

func (e *ProblemsError) Error() string {
	var merr *multierror.Error
	for i, p := range e.Problems {
		if p != nil {
			merr = multierror.Append(merr, fmt.Errorf("channel %d: %w", i, p))
		}
	}
	merr.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("task %s failed: %s", e.Kind, merr.Error())
}

// Unwrap exposes the channel problems to errors.Is and errors.As.
func (e *ProblemsError) Unwrap() []error {
	out := make([]error, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// ChannelProblem returns the problem registered by channel i, if any.
func (e *ProblemsError) ChannelProblem(i int) error {
	if i < 0 || i >= len(e.Problems) {
		return nil
	}
	return e.Problems[i]
}

// FailedChannels lists the indexes of all channels with a problem.
func (e *ProblemsError) FailedChannels() []int {
	var out []int
	for i, p := range e.Problems {
		if p != nil {
			out = append(out, i)
		}
	}
	return out
}

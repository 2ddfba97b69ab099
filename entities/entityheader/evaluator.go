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
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/weaviate/chanstore/entities/objectid"
)

type ErrorKind string

const (
	ErrHeaderTruncated    ErrorKind = "header truncated"
	ErrLengthOutOfRange   ErrorKind = "length out of range"
	ErrTypeIDOutOfRange   ErrorKind = "type id out of range"
	ErrObjectIDOutOfRange ErrorKind = "object id out of range"
	ErrEntityTruncated    ErrorKind = "entity exceeds available data"
)

// HeaderError describes why a header was rejected.
type HeaderError struct {
	Kind      ErrorKind
	Header    Header
	Available int64
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("invalid entity header (%s): length=%d, typeId=%d, objectId=%d, available=%d",
		e.Kind, e.Header.Length, e.Header.TypeID, e.Header.ObjectID, e.Available)
}

// Is allows errors.Is(err, &HeaderError{Kind: ...}) to match on the kind.
func (e *HeaderError) Is(target error) bool {
	t, ok := target.(*HeaderError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Bounds are half-open [lower, upper) ranges for each header field.
type Bounds struct {
	LengthLower   int64
	LengthUpper   int64
	TypeIDLower   int64
	TypeIDUpper   int64
	ObjectIDLower int64
	ObjectIDUpper int64
}

// DefaultBounds accept any record that is at least a header long, carries a
// type id other than zero and an object id from the object id range.
func DefaultBounds() Bounds {
	return Bounds{
		LengthLower:   Length,
		LengthUpper:   math.MaxInt64,
		TypeIDLower:   1,
		TypeIDUpper:   objectid.ObjectIDBase,
		ObjectIDLower: objectid.ObjectIDBase,
		ObjectIDUpper: objectid.ConstantIDBase,
	}
}

func (b Bounds) Validate() error {
	if b.LengthLower < Length {
		return errors.Errorf("length lower bound %d is smaller than the header length %d",
			b.LengthLower, Length)
	}
	if b.LengthLower >= b.LengthUpper {
		return errors.Errorf("empty length range [%d, %d)", b.LengthLower, b.LengthUpper)
	}
	if b.TypeIDLower >= b.TypeIDUpper {
		return errors.Errorf("empty type id range [%d, %d)", b.TypeIDLower, b.TypeIDUpper)
	}
	if b.ObjectIDLower >= b.ObjectIDUpper {
		return errors.Errorf("empty object id range [%d, %d)", b.ObjectIDLower, b.ObjectIDUpper)
	}
	return nil
}

// Evaluator validates entity headers against configured bounds. It holds no
// state beyond the bounds and is safe for concurrent use.
type Evaluator struct {
	bounds Bounds
}

func NewEvaluator(bounds Bounds) (*Evaluator, error) {
	if err := bounds.Validate(); err != nil {
		return nil, errors.Wrap(err, "entity header evaluator")
	}
	return &Evaluator{bounds: bounds}, nil
}

// NewDefaultEvaluator cannot fail, DefaultBounds are valid.
func NewDefaultEvaluator() *Evaluator {
	return &Evaluator{bounds: DefaultBounds()}
}

func (e *Evaluator) Bounds() Bounds {
	return e.bounds
}

func (e *Evaluator) IsValidHeader(length, typeID, objectID int64) bool {
	return e.check(Header{Length: length, TypeID: typeID, ObjectID: objectID}) == ""
}

// ValidateHeader is IsValidHeader returning the reason for rejection.
func (e *Evaluator) ValidateHeader(h Header) error {
	if kind := e.check(h); kind != "" {
		return &HeaderError{Kind: kind, Header: h, Available: -1}
	}
	return nil
}

// IsValidHeaderAt validates the header at the start of window, which holds
// all bytes available from that position on.
func (e *Evaluator) IsValidHeaderAt(window []byte) bool {
	_, err := e.ValidateAt(window)
	return err == nil
}

// ValidateAt checks, in this order, that a header fits into window, that its
// fields are within bounds, and that the declared length does not exceed the
// window. The header's own length is never trusted before the first two
// checks passed.
func (e *Evaluator) ValidateAt(window []byte) (Header, error) {
	available := int64(len(window))
	h, ok := Read(window)
	if !ok {
		return Header{}, &HeaderError{Kind: ErrHeaderTruncated, Available: available}
	}
	if kind := e.check(h); kind != "" {
		return h, &HeaderError{Kind: kind, Header: h, Available: available}
	}
	if h.Length > available {
		return h, &HeaderError{Kind: ErrEntityTruncated, Header: h, Available: available}
	}
	return h, nil
}

func (e *Evaluator) check(h Header) ErrorKind {
	switch {
	case h.Length < e.bounds.LengthLower || h.Length >= e.bounds.LengthUpper:
		return ErrLengthOutOfRange
	case h.TypeID < e.bounds.TypeIDLower || h.TypeID >= e.bounds.TypeIDUpper:
		return ErrTypeIDOutOfRange
	case h.ObjectID < e.bounds.ObjectIDLower || h.ObjectID >= e.bounds.ObjectIDUpper:
		return ErrObjectIDOutOfRange
	default:
		return ""
	}
}

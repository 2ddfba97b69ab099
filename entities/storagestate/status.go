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

package storagestate

import "errors"

const (
	StatusReadOnly Status = "READONLY"
	StatusReady    Status = "READY"
)

var (
	ErrStatusReadOnly      = errors.New("store is read-only")
	ErrInvalidStatus       = errors.New("invalid storage status")
	ErrWritingDisabled     = errors.New("writing is disabled")
	ErrFileCleanupDisabled = errors.New("file cleanup is disabled")
	ErrDeletionDisabled    = errors.New("file deletion is disabled")
	ErrBackupDisabled      = errors.New("backup is disabled")
)

type Status string

func (s Status) String() string {
	return string(s)
}

func ValidateStatus(in string) (status Status, err error) {
	switch in {
	case string(StatusReadOnly):
		status = StatusReadOnly
	case string(StatusReady):
		status = StatusReady
	default:
		err = ErrInvalidStatus
	}

	return
}

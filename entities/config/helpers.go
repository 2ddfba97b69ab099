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

package config

import (
	"strings"
)

// Enabled interprets the usual spellings of a switched-on environment value.
func Enabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "enabled", "1", "true":
		return true
	default:
		return false
	}
}

// Disabled is true only for values that explicitly switch a feature off, so
// an unset variable keeps the default.
func Disabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "off", "disabled", "0", "false":
		return true
	default:
		return false
	}
}

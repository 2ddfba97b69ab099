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

package channels

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	channelDirectoryPrefix = "channel_"
	dataFileSuffix         = ".dat"
	transactionsFilePrefix = "transactions_"
	transactionsFileSuffix = ".sft"
	tmpSuffix              = ".tmp"
)

func ChannelDirectoryName(channel int) string {
	return fmt.Sprintf("%s%d", channelDirectoryPrefix, channel)
}

func DataFileName(channel int, number int64) string {
	return fmt.Sprintf("%s%d_%d%s", channelDirectoryPrefix, channel, number, dataFileSuffix)
}

func TransactionsFileName(channel int) string {
	return fmt.Sprintf("%s%d%s", transactionsFilePrefix, channel, transactionsFileSuffix)
}

// ParseDataFileName returns the file number encoded in name if it is a data
// file of channel.
func ParseDataFileName(channel int, name string) (int64, bool) {
	prefix := fmt.Sprintf("%s%d_", channelDirectoryPrefix, channel)
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, dataFileSuffix) {
		return 0, false
	}
	number, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, prefix), dataFileSuffix), 10, 64)
	if err != nil || number <= 0 {
		return 0, false
	}
	return number, true
}

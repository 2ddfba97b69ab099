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

package main

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/usecases/config"
)

// Options represents Command line options
type Options struct {
	config.Flags
}

func main() {
	var opts Options
	log := logrus.WithFields(logrus.Fields{"app": "chanstore"}).Logger

	parser := flags.NewParser(&opts, flags.Default)
	for _, cmd := range []struct {
		name, short, long string
		data              interface{}
	}{
		{"serve", "Run the storage", "Open the storage and keep it running until SIGINT or SIGTERM.", &serveCommand{opts: &opts}},
		{"import", "Import files", "Import entity files into the storage.", &importCommand{opts: &opts}},
		{"export", "Export channels", "Copy the live data of every channel into a directory.", &exportCommand{opts: &opts}},
		{"check", "Check transactions logs", "Check the transactions log of every channel and repair it.", &checkCommand{opts: &opts}},
		{"gc", "Collect garbage", "Run a full garbage collection.", &gcCommand{opts: &opts}},
		{"stats", "Print statistics", "Print storage statistics as json.", &statsCommand{opts: &opts}},
	} {
		if _, err := parser.AddCommand(cmd.name, cmd.short, cmd.long, cmd.data); err != nil {
			log.WithError(err).Fatal("failed to register command")
		}
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		// go-flags already printed the error
		os.Exit(1)
	}
}

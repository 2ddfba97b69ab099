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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/afs/localfs"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

// withApp opens the storage, runs fn and closes it again, joining the errors
// of both.
func withApp(opts *Options, fn func(ctx context.Context, a *app) error) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := open(ctx, &opts.Flags)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type serveCommand struct {
	opts *Options
}

func (c *serveCommand) Execute(_ []string) error {
	return withApp(c.opts, func(ctx context.Context, a *app) error {
		if a.config.Monitoring.Enabled {
			addr, err := monitoring.ServeMetrics(ctx, fmt.Sprintf(":%d", a.config.Monitoring.Port),
				a.registry, a.metrics, a.logger)
			if err != nil {
				return errors.Wrap(err, "start metrics server")
			}
			a.logger.WithField("address", addr).Info("serving metrics")
		}

		a.logger.WithFields(logrus.Fields{
			"data_path": a.config.Persistence.DataPath,
			"connector": a.config.Persistence.Connector,
			"read_only": a.config.IsReadOnly(),
		}).Info("chanstore is running")
		<-ctx.Done()
		a.logger.Info("received shutdown signal")
		return nil
	})
}

type importCommand struct {
	opts *Options
	Args struct {
		Files []string `positional-arg-name:"file" required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *importCommand) Execute(_ []string) error {
	return withApp(c.opts, func(ctx context.Context, a *app) error {
		reports, err := a.storage.ImportFiles(ctx, c.Args.Files)
		if err != nil {
			return err
		}
		faulty := 0
		for _, r := range reports {
			l := a.logger.WithFields(logrus.Fields{
				"source":   r.Source,
				"bytes":    r.Bytes,
				"batches":  r.Batches,
				"entities": r.Entities,
			})
			if r.Fault != nil {
				faulty++
				l.WithError(r.Fault).WithField("offset", r.FaultOffset).
					Warn("source imported up to the first invalid record")
				continue
			}
			l.Info("source imported")
		}
		if faulty > 0 {
			return fmt.Errorf("%d of %d sources contained invalid data", faulty, len(reports))
		}
		return nil
	})
}

type exportCommand struct {
	opts *Options
	GC   bool `long:"gc" description:"run a full garbage collection before exporting"`
	Args struct {
		Target string `positional-arg-name:"dir" required:"1"`
	} `positional-args:"yes" required:"yes"`
}

func (c *exportCommand) Execute(_ []string) error {
	return withApp(c.opts, func(ctx context.Context, a *app) error {
		target, err := localfs.New(c.Args.Target)
		if err != nil {
			return err
		}
		defer target.Close()

		results, err := a.storage.ExportChannels(ctx, target, c.GC)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, results)
	})
}

type checkCommand struct {
	opts      *Options
	CheckSize bool `long:"check-size" description:"also check data file sizes against the log"`
}

func (c *checkCommand) Execute(_ []string) error {
	return withApp(c.opts, func(ctx context.Context, a *app) error {
		checks, err := a.storage.IssueTransactionsFileCheck(ctx, c.CheckSize)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, checks)
	})
}

type gcCommand struct {
	opts *Options
}

func (c *gcCommand) Execute(_ []string) error {
	return withApp(c.opts, func(ctx context.Context, a *app) error {
		if err := a.storage.IssueFullGarbageCollection(ctx); err != nil {
			return err
		}
		stats, err := a.storage.Statistics(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, stats)
	})
}

type statsCommand struct {
	opts *Options
}

func (c *statsCommand) Execute(_ []string) error {
	return withApp(c.opts, func(ctx context.Context, a *app) error {
		stats, err := a.storage.Statistics(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, stats)
	})
}

// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamverify/ingest/internal/batch"
	"github.com/streamverify/ingest/internal/downloader"
	"github.com/streamverify/ingest/internal/logging"
	"github.com/streamverify/ingest/internal/status"
	"github.com/streamverify/ingest/pkg/addressbook"
	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/checkpoint"
	"github.com/streamverify/ingest/pkg/config"
	"github.com/streamverify/ingest/pkg/metrics/prometheus"
	"github.com/streamverify/ingest/pkg/objectstore"
)

func main() {
	fs := config.NewFlagSet(os.Args[0])
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	conf, err := config.LoadFlags(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}

	logger, err := logging.New(conf.Log.Level, conf.Log.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(conf, logger); err != nil {
		logger.Errorf("Exiting: %v", err)
		os.Exit(1)
	}
}

func run(conf config.Configuration, logger *zap.SugaredLogger) error {
	store, err := objectstore.NewFileStore(conf.ObjectStoreRoot)
	if err != nil {
		return err
	}

	ldb, err := checkpoint.OpenLevelDB(conf.CheckpointDir)
	if err != nil {
		return err
	}
	defer ldb.Close()
	tracker := &checkpoint.Tracker{Store: ldb}

	var archiver api.Archiver
	if conf.ValidDir != "" {
		archiver = &downloader.FileArchiver{Dir: conf.ValidDir}
	}

	provider := prometheus.NewProvider()
	book := &addressbook.File{Path: conf.AddressBookFile}
	parser := &batch.LogParser{Logger: logger.With("component", "parser")}
	dispatcher := &batch.Dispatcher{}

	var downloaders []*downloader.Downloader
	var streams []status.Stream
	for _, st := range conf.Streams {
		streamLogger := logger.With("stream", st.String())
		if err := dispatcher.Set(st, &batch.Notifier{
			Type:    st,
			Parser:  parser,
			Logger:  streamLogger,
			Config:  conf.Batch,
			Metrics: batch.NewMetrics(provider, st.String()),
		}); err != nil {
			return err
		}

		d := &downloader.Downloader{
			Type:        st,
			Config:      conf,
			Store:       store,
			AddressBook: book,
			Checkpoints: tracker,
			Notifier:    dispatcher,
			Archiver:    archiver,
			Logger:      streamLogger,
			Metrics:     downloader.NewMetrics(provider, st.String()),
		}
		downloaders = append(downloaders, d)
		streams = append(streams, status.Stream{Type: st, Reports: d})
	}

	dispatcher.Start()

	var srv *http.Server
	if conf.StatusAddress != "" {
		router := status.NewRouter(&status.Handler{
			Streams:        streams,
			Checkpoints:    tracker,
			BypassFallback: conf.BypassHashMismatchUntilAfter,
			Metrics:        provider.Handler(),
			Logger:         logger,
		})
		srv = &http.Server{
			Addr:              conf.StatusAddress,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Status server stopped: %v", err)
			}
		}()
		logger.Infof("Status server listening on %s", conf.StatusAddress)
	}

	signals, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-signals.Done()
		logger.Infof("Shutdown signal received, finishing in-flight work")
		for _, d := range downloaders {
			d.Stop()
		}
	}()

	logger.Infof("Ingesting %v every %v", conf.Streams, conf.CycleInterval)

	// Downloads run on a context that signals do not cancel, so calls in flight may finish.
	var g errgroup.Group
	for _, d := range downloaders {
		d := d
		g.Go(func() error {
			return cycle(signals, d, conf.CycleInterval, logger)
		})
	}
	cycleErr := g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), conf.StopTimeout)
	defer stopCancel()
	if err := dispatcher.Stop(stopCtx); err != nil {
		logger.Warnf("Notifiers did not stop cleanly: %v", err)
	}
	if srv != nil {
		if err := srv.Shutdown(stopCtx); err != nil {
			logger.Warnf("Status server did not stop cleanly: %v", err)
		}
	}
	return cycleErr
}

// cycle runs download cycles until stop is done. Hard failures are logged and retried at the
// next cycle.
func cycle(stop context.Context, d *downloader.Downloader, interval time.Duration, logger *zap.SugaredLogger) error {
	for {
		if _, err := d.Download(context.Background()); err != nil {
			logger.Errorf("%s cycle aborted: %v", d.Type, err)
		}

		select {
		case <-stop.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

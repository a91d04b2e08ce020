/*
Copyright 2023 Alibaba Group Holding Limited.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/exporter"
	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register the configured drivers and run the idle loops.",
	Args:  cobra.NoArgs,
	Run:   wrap(runRun),
}

var (
	duration    time.Duration
	metricsAddr string
	metricsPath string
	lockFile    string
)

func init() {
	runCmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after the duration, run until interrupted if 0.")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve metrics on, disabled if empty.")
	runCmd.Flags().StringVar(&metricsPath, "metrics-path", "/metrics", "Path to serve metrics on.")
	runCmd.Flags().StringVar(&lockFile, "lock-file", "", "Used to do file lock to ensure exclusivity.")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger()

	// Grab the file lock.
	if len(lockFile) > 0 {
		log.Info("getting file lock...")
		fl := flock.New(lockFile)
		locked, err := fl.TryLock()
		if err != nil {
			return errors.Wrap(err, "failed to lock")
		}
		if !locked {
			return errors.Errorf("%s is locked by another process", lockFile)
		}
		defer fl.Unlock()
		log.Info("locked, continue")
	}

	c, err := loadConfig()
	if err != nil {
		return err
	}

	e := exporter.NewExporter(log)
	s, err := sim.New(c, sim.Options{Logger: log, Observer: e})
	if err != nil {
		return err
	}
	defer s.Close()
	if b, ok := s.Registry().Coordinator().(*cpuidle.SmpBroadcast); ok {
		e.Watch(s.Registry(), b.Tracker())
	} else {
		e.Watch(s.Registry(), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if len(metricsAddr) > 0 {
		server, err := startMetricsServer(log, e)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	stats, err := s.Run(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "units: %d, entries: %d, wakeups: %d\n", stats.Units, stats.Entries, stats.Wakeups)
	return nil
}

func startMetricsServer(log logr.Logger, e *exporter.Exporter) (*http.Server, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(e); err != nil {
		return nil, errors.Wrap(err, "failed to register exporter")
	}
	registry.MustRegister(
		version.NewCollector("cpuidle_sim"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	log.Info("Listening on address", "address", metricsAddr, "version", version.Info())
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Error starting HTTP server")
		}
	}()
	return server, nil
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// thermometer polls the DS18B20 sensors of a 1-wire bus and exports their
// temperature as prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire/onewirereg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/thermometer/ds18b20"
	"github.com/GermanBionicSystems/thermometer/ds248x"
	"github.com/GermanBionicSystems/thermometer/internal/config"
	"github.com/GermanBionicSystems/thermometer/internal/logging"
	"github.com/GermanBionicSystems/thermometer/internal/metrics"
	"github.com/GermanBionicSystems/thermometer/internal/poller"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "thermometer: %s.\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "path to the YAML configuration")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if _, err := host.Init(); err != nil {
		return err
	}
	t, closer, err := openTransport(cfg.Bus)
	if err != nil {
		return err
	}
	defer closer.Close()

	dev := ds18b20.New(t, &ds18b20.Opts{ResolutionAware: cfg.Sensors.ResolutionAware})
	log.Info("bus opened", zap.Stringer("dev", dev), zap.String("kind", cfg.Bus.Kind))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enable {
		reg := metrics.NewRegistry()
		m = metrics.New(reg)
		srv := serveMetrics(log, cfg.Metrics, reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	addrs, err := cfg.Sensors.ParseAddresses()
	if err != nil {
		return err
	}
	opts := poller.Opts{Interval: cfg.Poll.Interval, Addresses: addrs}
	if cfg.Sensors.Configure {
		s, err := cfg.Sensors.Scratchpad()
		if err != nil {
			return err
		}
		opts.Setup = &s
	}
	return poller.New(dev, log, m, opts).Run(ctx)
}

// openTransport opens the bus master selected by cfg.
func openTransport(cfg config.BusConfig) (ds18b20.Transport, io.Closer, error) {
	switch cfg.Kind {
	case config.BusOneWire:
		b, err := onewirereg.Open(cfg.Name)
		if err != nil {
			return nil, nil, err
		}
		return ds18b20.NewBusTransport(b), b, nil
	case config.BusDS248x:
		b, err := i2creg.Open(cfg.I2CBus)
		if err != nil {
			return nil, nil, err
		}
		opts := ds248x.DefaultOpts
		opts.PassivePullup = cfg.PassivePullup
		d, err := ds248x.New(b, cfg.I2CAddr, &opts)
		if err != nil {
			b.Close()
			return nil, nil, err
		}
		if cfg.StrongPullup {
			return ds18b20.NewBusTransport(d), b, nil
		}
		return d, b, nil
	default:
		return nil, nil, fmt.Errorf("unknown bus kind %q", cfg.Kind)
	}
}

// serveMetrics serves reg in the background until the returned server is
// shut down.
func serveMetrics(log *zap.Logger, cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("serving metrics", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package poller periodically reads every DS18B20 on a bus.
package poller

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/thermometer/crc8"
	"github.com/GermanBionicSystems/thermometer/ds18b20"
	"github.com/GermanBionicSystems/thermometer/internal/metrics"
)

// Thermometer is the subset of *ds18b20.Dev used by the poller.
type Thermometer interface {
	Search() iter.Seq2[ds18b20.Address, error]
	Configure(a ds18b20.Address, s ds18b20.Scratchpad) error
	Status(a ds18b20.Address) (ds18b20.Scratchpad, error)
	Temperature(a ds18b20.Address) (float32, error)
}

// Opts configures a Poller.
type Opts struct {
	Interval time.Duration
	// Addresses pins the sensors to poll instead of searching the bus.
	Addresses []ds18b20.Address
	// Setup, when set, is written to every sensor by Run before polling.
	Setup *ds18b20.Scratchpad
}

// Reading is the outcome of reading one sensor.
type Reading struct {
	Address ds18b20.Address
	Celsius float32
	Err     error
}

// Poller reads the sensors of a bus at a fixed pace.
//
// The addresses are discovered once and reused for every cycle; call Refresh
// after sensors were added or removed.
type Poller struct {
	dev     Thermometer
	log     *zap.Logger
	m       *metrics.Metrics
	limiter *rate.Limiter
	fixed   []ds18b20.Address
	setup   *ds18b20.Scratchpad

	mu    sync.Mutex
	addrs []ds18b20.Address
}

// New returns a Poller. m can be nil.
func New(dev Thermometer, log *zap.Logger, m *metrics.Metrics, opts Opts) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		dev:     dev,
		log:     log,
		m:       m,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		fixed:   append([]ds18b20.Address(nil), opts.Addresses...),
		setup:   opts.Setup,
	}
}

// Addresses returns the cached addresses, discovering them on first use.
func (p *Poller) Addresses() ([]ds18b20.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addrs == nil {
		if err := p.discover(); err != nil {
			return nil, err
		}
	}
	return append([]ds18b20.Address(nil), p.addrs...), nil
}

// Refresh discards the cached addresses and discovers them again.
func (p *Poller) Refresh() ([]ds18b20.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addrs = nil
	if err := p.discover(); err != nil {
		return nil, err
	}
	return append([]ds18b20.Address(nil), p.addrs...), nil
}

// discover fills p.addrs. p.mu must be held.
func (p *Poller) discover() error {
	var found []ds18b20.Address
	if len(p.fixed) != 0 {
		found = append(found, p.fixed...)
	} else {
		for a, err := range p.dev.Search() {
			var fe *ds18b20.FamilyCodeError
			if errors.As(err, &fe) {
				p.log.Warn("skipping foreign device", zap.Stringer("address", a), zap.Stringer("family", a.FamilyCode()))
				p.countError(err)
				continue
			}
			if err != nil {
				p.countError(err)
				return err
			}
			found = append(found, a)
		}
		if len(found) == 0 {
			p.countError(ds18b20.ErrDeviceNotFound)
			return ds18b20.ErrDeviceNotFound
		}
	}
	p.addrs = found
	if p.m != nil {
		p.m.Devices.Set(float64(len(found)))
	}
	p.log.Info("sensors", zap.Stringers("addresses", found))
	return nil
}

// Configure writes the setup scratchpad to every sensor and logs what each
// one reports back. It stops at the first failure.
func (p *Poller) Configure() error {
	if p.setup == nil {
		return nil
	}
	addrs, err := p.Addresses()
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if err := p.dev.Configure(a, *p.setup); err != nil {
			p.countError(err)
			return err
		}
		s, err := p.dev.Status(a)
		if err != nil {
			p.countError(err)
			return err
		}
		p.log.Info("configured",
			zap.Stringer("address", a),
			zap.Int8("alarmHigh", s.AlarmHigh),
			zap.Int8("alarmLow", s.AlarmLow),
			zap.Stringer("resolution", s.Configuration.Resolution),
			zap.Float32("celsius", s.Temperature))
	}
	return nil
}

// Poll reads every sensor once. Failures are logged and counted, not retried.
func (p *Poller) Poll() ([]Reading, error) {
	addrs, err := p.Addresses()
	if err != nil {
		return nil, err
	}
	out := make([]Reading, 0, len(addrs))
	for _, a := range addrs {
		c, err := p.dev.Temperature(a)
		out = append(out, Reading{Address: a, Celsius: c, Err: err})
		label := a.String()
		if err != nil {
			p.log.Warn("read failed", zap.Stringer("address", a), zap.Error(err))
			p.countError(err)
			if p.m != nil {
				p.m.Readings.WithLabelValues(label, "error").Inc()
			}
			continue
		}
		p.log.Debug("temperature", zap.Stringer("address", a), zap.Float32("celsius", c))
		if p.m != nil {
			p.m.Readings.WithLabelValues(label, "ok").Inc()
			p.m.Temperature.WithLabelValues(label).Set(float64(c))
		}
	}
	return out, nil
}

// Run discovers and configures the sensors, then polls them until ctx is
// done. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := p.Addresses(); err != nil {
		return err
	}
	if err := p.Configure(); err != nil {
		return err
	}
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := p.Poll(); err != nil {
			return err
		}
	}
}

func (p *Poller) countError(err error) {
	if p.m != nil {
		p.m.Errors.WithLabelValues(ErrorKind(err)).Inc()
	}
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	var (
		crcErr   *crc8.Error
		famErr   *ds18b20.FamilyCodeError
		cfgErr   *ds18b20.ConfigurationRegisterError
		busErr   onewire.BusError
		shortErr onewire.ShortedBusError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &crcErr):
		return "crc"
	case errors.As(err, &famErr):
		return "family"
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.Is(err, ds18b20.ErrDeviceNotFound):
		return "not_found"
	case errors.Is(err, ds18b20.ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, ds18b20.ErrProtocol):
		return "protocol"
	case errors.As(err, &shortErr) && shortErr.IsShorted():
		return "shorted"
	case errors.As(err, &busErr) && busErr.BusError():
		return "bus"
	default:
		return "transport"
	}
}

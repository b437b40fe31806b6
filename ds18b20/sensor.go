// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// powerOnTemperature is the content of the temperature register until a
// conversion completes.
const powerOnTemperature = 85

// Sensor is a single DS18B20 on a bus, exposed as a physic.SenseEnv.
type Sensor struct {
	d          *Dev
	addr       Address
	resolution Resolution

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSensor returns the Sensor at address a.
//
// It starts by reading the scratchpad, this tells whether the device answers
// and how it is configured.
func NewSensor(d *Dev, a Address) (*Sensor, error) {
	s, err := d.Status(a)
	if err != nil {
		return nil, err
	}
	return &Sensor{d: d, addr: a, resolution: s.Configuration.Resolution}, nil
}

// Address returns the address of the sensor.
func (s *Sensor) Address() Address {
	return s.addr
}

func (s *Sensor) String() string {
	return s.addr.FamilyCode().String() + "{" + s.addr.String() + "}"
}

// Sense implements physic.SenseEnv.
func (s *Sensor) Sense(e *physic.Env) error {
	c, err := s.d.Temperature(s.addr)
	if err != nil {
		return err
	}
	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power. This prevents reading a temp of exactly 85°C,
	// but that seems like the right tradeoff.
	if c == powerOnTemperature {
		return busError("ds18b20: has not performed a temperature conversion (insufficient pull-up?)")
	}
	e.Temperature = celsius(c)
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// A conversion is started every interval; failed readings are dropped. Call
// Halt to stop.
func (s *Sensor) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval <= 0 {
		return nil, errors.New("ds18b20: invalid interval")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil, errors.New("ds18b20: already sensing continuously")
	}
	stop := make(chan struct{})
	s.stop = stop
	out := make(chan physic.Env)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			var e physic.Env
			if err := s.Sense(&e); err == nil {
				select {
				case out <- e:
				case <-stop:
					return
				}
			}
			select {
			case <-stop:
				return
			case <-t.C:
			}
		}
	}()
	return out, nil
}

// Precision implements physic.SenseEnv.
func (s *Sensor) Precision(e *physic.Env) {
	e.Temperature = s.resolution.Step()
}

// Halt stops a SenseContinuous loop, if any.
func (s *Sensor) Halt() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		s.wg.Wait()
	}
	return nil
}

var _ conn.Resource = &Sensor{}
var _ physic.SenseEnv = &Sensor{}

// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// ResolutionAware makes Temperature read the configuration register of
	// the device before starting a conversion, and wait only as long as that
	// resolution requires. This costs one extra bus transaction, which pays
	// off for devices configured below 12 bits.
	//
	// When false, Temperature always waits 750ms.
	ResolutionAware bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{}

// Dev is a handle to the DS18B20 devices reachable through a Transport.
//
// Dev owns the transport: the composite operations (Status, Temperature,
// ...) hold a lock for their whole reset, select, act sequences so they never
// interleave. Sequences driven manually through Reset must not run
// concurrently with any other use of the Dev; use Tx for that.
type Dev struct {
	mu   sync.Mutex
	t    Transport
	opts Opts
	gen  atomic.Uint64 // incremented on every bus reset
}

// New returns a Dev that talks to DS18B20 devices through t. opts can be nil.
func New(t Transport, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	return &Dev{t: t, opts: *opts}
}

func (d *Dev) String() string {
	if s, ok := d.t.(fmt.Stringer); ok {
		return "DS18B20{" + s.String() + "}"
	}
	return "DS18B20"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Reset resets the bus and returns the Selection to issue the next ROM
// command on. Any session started before is invalidated.
func (d *Dev) Reset() (*Selection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// Tx resets the bus and runs fn with exclusive access to it.
func (d *Dev) Tx(fn func(*Selection) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.reset()
	if err != nil {
		return err
	}
	return fn(sel)
}

func (d *Dev) reset() (*Selection, error) {
	g := d.gen.Add(1)
	if err := d.t.Reset(); err != nil {
		return nil, fmt.Errorf("ds18b20: reset: %w", err)
	}
	return &Selection{s: session{d: d, gen: g}}, nil
}

// selectDevice resets the bus and selects a. d.mu must be held.
func (d *Dev) selectDevice(a Address) (*Memory, error) {
	sel, err := d.reset()
	if err != nil {
		return nil, err
	}
	return sel.MatchAddress(a)
}

// Search enumerates the devices on the bus.
//
// Every DS18B20 is yielded with a nil error. A device from another family is
// yielded along with a *FamilyCodeError and the enumeration continues; the
// caller decides whether to skip it. A transport error is yielded once and
// ends the sequence.
func (d *Dev) Search() iter.Seq2[Address, error] {
	return func(yield func(Address, error) bool) {
		d.mu.Lock()
		// A search starts with a reset.
		d.gen.Add(1)
		next, stop := iter.Pull2(d.t.Enumerate())
		d.mu.Unlock()
		defer stop()
		for {
			d.mu.Lock()
			raw, err, ok := next()
			d.mu.Unlock()
			if !ok {
				return
			}
			if err != nil {
				yield(0, fmt.Errorf("ds18b20: search: %w", err))
				return
			}
			a := Address(raw)
			if a.FamilyCode() != FamilyCode {
				err = &FamilyCodeError{Address: a}
			}
			if !yield(a, err) {
				return
			}
		}
	}
}

// Addresses returns the address of every DS18B20 on the bus, skipping
// devices of other families.
//
// It returns ErrDeviceNotFound if there is none.
func (d *Dev) Addresses() ([]Address, error) {
	var out []Address
	for a, err := range d.Search() {
		var fe *FamilyCodeError
		if errors.As(err, &fe) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, ErrDeviceNotFound
	}
	return out, nil
}

// First returns the first DS18B20 found on the bus.
func (d *Dev) First() (Address, error) {
	for a, err := range d.Search() {
		var fe *FamilyCodeError
		if errors.As(err, &fe) {
			continue
		}
		return a, err
	}
	return 0, ErrDeviceNotFound
}

// ReadAddress reads the address of the only device on the bus.
func (d *Dev) ReadAddress() (Address, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.reset()
	if err != nil {
		return 0, err
	}
	return sel.ReadAddress()
}

// Status reads the scratchpad of a.
func (d *Dev) Status(a Address) (Scratchpad, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status(a)
}

func (d *Dev) status(a Address) (Scratchpad, error) {
	m, err := d.selectDevice(a)
	if err != nil {
		return Scratchpad{}, err
	}
	return m.ReadScratchpad()
}

// Configure writes the alarm thresholds and resolution of s to a.
func (d *Dev) Configure(a Address, s Scratchpad) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.selectDevice(a)
	if err != nil {
		return err
	}
	return m.WriteScratchpad(s)
}

// Convert starts a conversion on a and waits the 12 bits worst case for it
// to complete.
func (d *Dev) Convert(a Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.convert(a, Resolution12)
}

func (d *Dev) convert(a Address, r Resolution) error {
	m, err := d.selectDevice(a)
	if err != nil {
		return err
	}
	return m.ConvertTemperatureFor(r)
}

// ConvertAll starts a conversion on every device on the bus at once, and
// waits for the time a conversion at resolution r takes. r must be the
// highest resolution configured on the bus.
func (d *Dev) ConvertAll(r Resolution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.reset()
	if err != nil {
		return err
	}
	m, err := sel.SkipAddress()
	if err != nil {
		return err
	}
	return m.ConvertTemperatureFor(r)
}

// Temperature performs a conversion on a and returns the result in °C.
//
// This takes two bus transactions, three with Opts.ResolutionAware. Nothing
// is retried on failure.
func (d *Dev) Temperature(a Address) (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := Resolution12
	if d.opts.ResolutionAware {
		s, err := d.status(a)
		if err != nil {
			return 0, err
		}
		r = s.Configuration.Resolution
	}
	if err := d.convert(a, r); err != nil {
		return 0, err
	}
	s, err := d.status(a)
	if err != nil {
		return 0, err
	}
	return s.Temperature, nil
}

var _ conn.Resource = &Dev{}

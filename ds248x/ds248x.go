// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/onewire"
)

// PupOhm controls the strength of the passive pull-up resistor
// on the 1-wire data line. The default value is 1000Ω.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω PupOhm = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω PupOhm = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	PassivePullup bool // false:use active pull-up, true: disable active pullup

	// The following options are only available on the ds2483.
	// The value is rounded down to the closest supported step.
	ResetLow       time.Duration // reset low time, range 440μs..740μs
	PresenceDetect time.Duration // presence detect sample time, range 58μs..76μs
	Write0Low      time.Duration // write zero low time, range 52μs..70μs
	Write0Recovery time.Duration // write zero recovery time, range 2750ns..25250ns
	PullupRes      PupOhm        // passive pull-up resistance
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PassivePullup:  false,
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// Variant is the detected bus master model.
type Variant int

const (
	DS2482x100 Variant = iota
	DS2482x800
	DS2483
)

func (v Variant) String() string {
	switch v {
	case DS2482x100:
		return "DS2482-100"
	case DS2482x800:
		return "DS2482-800"
	case DS2483:
		return "DS2483"
	default:
		return "Undefined"
	}
}

// New returns a device object that communicates over I²C to the DS2482/DS2483
// controller. opts can be nil.
//
// Valid I²C addresses are 0x18, 0x19, 0x20 and 0x21.
func New(i i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x18, 0x19, 0x20, 0x21:
	default:
		return nil, errors.New("ds248x: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{i2c: &i2c.Dev{Bus: i, Addr: addr}}
	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a ds248x device.
//
// It implements onewire.Bus, where every Tx is a complete reset, write, read
// transaction, and the finer grained Reset, Write, Read and Enumerate methods
// used by command state machines such as ds18b20.Dev.
//
// Dev implements a persistent error model: once the ds248x itself, or the I²C
// bus used to reach it, fails, every later call returns that error. A fresh
// Dev, which reinitializes the hardware, must be created to proceed. Errors
// on the 1-wire side implement onewire.BusError and are not persistent.
type Dev struct {
	mu      sync.Mutex    // held while a bus operation is in progress
	i2c     conn.Conn     // i2c device handle for the ds248x
	variant Variant       // detected model
	confReg byte          // value written to configuration register
	tReset  time.Duration // time to perform a 1-wire reset
	tSlot   time.Duration // time to perform a 1-bit 1-wire read/write
	err     error         // persistent error
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.variant, d.i2c)
}

// Variant returns the detected model.
func (d *Dev) Variant() Variant {
	return d.variant
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Reset issues a reset pulse. It returns a onewire.BusError if no device
// answered with a presence pulse.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// Write sends w on the 1-wire bus.
func (d *Dev) Write(w []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range w {
		d.writeByte(b)
	}
	return d.err
}

// Read fills r with bytes read from the 1-wire bus.
func (d *Dev) Read(r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range r {
		r[i] = d.readByte()
	}
	return d.err
}

// Enumerate yields the address of every device on the bus.
func (d *Dev) Enumerate() iter.Seq2[onewire.Address, error] {
	return func(yield func(onewire.Address, error) bool) {
		addrs, err := d.Search(false)
		for _, a := range addrs {
			if !yield(a, nil) {
				return
			}
		}
		if err != nil {
			yield(0, err)
		}
	}
}

// Tx implements onewire.Bus.
//
// It performs a reset, sends w, reads r and ends by pulling the bus high
// either weakly or strongly depending on power. A strong pull-up is typically
// required to power a temperature conversion or an EEPROM write.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reset(); err != nil {
		return err
	}
	for i, b := range w {
		if power == onewire.StrongPullup && len(r) == 0 && i == len(w)-1 {
			d.strongPullup()
		}
		d.writeByte(b)
	}
	for i := range r {
		if power == onewire.StrongPullup && i == len(r)-1 {
			d.strongPullup()
		}
		r[i] = d.readByte()
	}
	return d.err
}

// Search implements onewire.Bus.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return onewire.Search(d, alarmOnly)
}

// SearchTriplet implements onewire.BusSearcher. Use Search instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	var dir byte
	if direction != 0 {
		dir = 0x80
	}
	d.i2cTx([]byte{cmd1WTriplet, dir}, nil)
	// The 3 time slots overlap with the status polling.
	status := d.waitIdle(0)
	return onewire.TripletResult{
		GotZero: status&statusSBR == 0,
		GotOne:  status&statusTSB == 0,
		Taken:   status >> 7,
	}, d.err
}

// SetChannel selects one of the 8 1-wire channels of a DS2482-800. Other
// models only have channel 0.
func (d *Dev) SetChannel(ch int) error {
	if ch < 0 || ch >= len(channelCodes) {
		return fmt.Errorf("ds248x: invalid channel %d", ch)
	}
	if d.variant != DS2482x800 {
		if ch != 0 {
			return fmt.Errorf("ds248x: %s has a single channel", d.variant)
		}
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.i2c.Tx([]byte{cmdChannelSelect, channelCodes[ch].w}, nil); err != nil {
		return fmt.Errorf("ds248x: error while selecting channel: %w", err)
	}
	return nil
}

// Channel returns the selected 1-wire channel.
func (d *Dev) Channel() (int, error) {
	if d.variant != DS2482x800 {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var b [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, b[:]); err != nil {
		return 0, fmt.Errorf("ds248x: error while reading channel: %w", err)
	}
	for i, c := range channelCodes {
		if c.r == b[0] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("ds248x: unexpected channel selection register %#02x", b[0])
}

//

// reset issues a reset on the 1-wire bus. d.mu must be held.
func (d *Dev) reset() error {
	d.i2cTx([]byte{cmd1WReset}, nil)
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return d.err
	}
	if status&statusSD != 0 {
		return shortedBusError("onewire/ds248x: bus has a short")
	}
	if status&statusPPD == 0 {
		return busError("ds248x: no device present")
	}
	return nil
}

func (d *Dev) writeByte(b byte) {
	d.i2cTx([]byte{cmd1WWrite, b}, nil)
	d.waitIdle(8 * d.tSlot)
}

func (d *Dev) readByte() byte {
	d.i2cTx([]byte{cmd1WRead}, nil)
	d.waitIdle(8 * d.tSlot)
	var b [1]byte
	d.i2cTx([]byte{cmdSetReadPtr, regRDR}, b[:])
	return b[0]
}

// strongPullup arms the strong pull-up for the end of the next byte.
func (d *Dev) strongPullup() {
	d.i2cTx([]byte{cmdWriteConfig, d.confReg&^confSPUInv | confSPU}, nil)
}

// i2cTx calls i2c.Tx and persists its error.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err != nil {
		return
	}
	d.err = d.i2c.Tx(w, r)
}

// waitIdle sleeps for delay then polls the status register, sleeping a tenth
// of delay between reads, until the 1-wire bus is idle. It returns the last
// status read.
//
// An overall timeout of 3ms is applied to the whole procedure. waitIdle uses
// the persistent error model and returns 0 if there is an error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	deadline := time.Now().Add(3 * time.Millisecond)
	sleep(delay)
	for {
		var status [1]byte
		d.i2cTx(nil, status[:])
		// status is 0 on error.
		if status[0]&status1WB == 0 {
			return status[0]
		}
		if time.Now().After(deadline) {
			// The ds248x itself is stuck, this is persistent.
			d.err = errors.New("ds248x: timeout waiting for bus cycle to finish")
			return 0
		}
		sleep(delay / 10)
	}
}

func (d *Dev) init(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery

	if err := d.i2c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds248x: error while resetting: %w", err)
	}
	var stat [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regStatus}, stat[:]); err != nil {
		return fmt.Errorf("ds248x: error while reading status register: %w", err)
	}
	if stat[0] != statusRST|statusLL {
		return fmt.Errorf("ds248x: invalid status register value: %#x, expected 0x18", stat[0])
	}

	// Standard speed, no strong pull-up, no power down, active pull-up. The
	// high nibble must be the complement of the low one.
	d.confReg = 0xe1
	if opts.PassivePullup {
		d.confReg ^= 0x11
	}
	var dcr [1]byte
	if err := d.i2c.Tx([]byte{cmdWriteConfig, d.confReg}, dcr[:]); err != nil {
		return fmt.Errorf("ds248x: error while writing device config register: %w", err)
	}
	if dcr[0] != d.confReg&0x0f {
		return fmt.Errorf("ds248x: failure to write device config register, wrote %#x got %#x back",
			d.confReg, dcr[0])
	}

	// Only the ds2483 has a port configuration register and only the
	// ds2482-800 a channel selection register; pointing the read pointer at a
	// missing register fails.
	switch {
	case d.i2c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil:
		d.variant = DS2483
		w := []byte{cmdAdjPort,
			portParam(0, (opts.ResetLow-430*time.Microsecond)/(20*time.Microsecond)),
			portParam(1, (opts.PresenceDetect-55*time.Microsecond)/(2*time.Microsecond)),
			portParam(2, (opts.Write0Low-51*time.Microsecond)/(2*time.Microsecond)),
			portParam(3, (opts.Write0Recovery-1250*time.Nanosecond)/(2500*time.Nanosecond)+5),
			portParam(4, time.Duration(opts.PullupRes)),
		}
		if err := d.i2c.Tx(w, nil); err != nil {
			return fmt.Errorf("ds248x: error while setting port config values: %w", err)
		}
	case d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil:
		d.variant = DS2482x800
		if err := d.i2c.Tx([]byte{cmdChannelSelect, channelCodes[0].w}, nil); err != nil {
			return fmt.Errorf("ds248x: error while selecting channel: %w", err)
		}
	default:
		d.variant = DS2482x100
	}
	return nil
}

// portParam encodes one parameter of the adjust port command: the parameter
// index in the high nibble, its value in the low one.
func portParam(index byte, v time.Duration) byte {
	return index<<5 | byte(v)&0x0f
}

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}

const (
	cmdReset         = 0xf0 // reset ds248x
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (ds2483)
	cmdChannelSelect = 0xc3 // channel select (ds2482-800)
	cmd1WReset       = 0xb4 // reset the 1-wire bus
	cmd1WWrite       = 0xa5 // perform a byte write on the 1-wire bus
	cmd1WRead        = 0x96 // perform a byte read on the 1-wire bus
	cmd1WTriplet     = 0x78 // perform a triplet operation (2 bit reads, a bit write)

	regStatus = 0xf0 // read ptr for status register
	regRDR    = 0xe1 // read ptr for read-data register
	regPCR    = 0xb4 // read ptr for port configuration register
	regCSR    = 0xd2 // read ptr for channel selection register

	status1WB = 1 << 0 // 1-wire busy
	statusPPD = 1 << 1 // presence pulse detected
	statusSD  = 1 << 2 // short detected
	statusLL  = 1 << 3 // logic level
	statusRST = 1 << 4 // device reset
	statusSBR = 1 << 5 // single bit result
	statusTSB = 1 << 6 // triplet second bit

	confSPU    = 1 << 2 // strong pull-up
	confSPUInv = 1 << 6 // complement of the strong pull-up bit
)

// channelCodes are the ds2482-800 channel selection codes, as written and as
// read back.
var channelCodes = [8]struct{ w, r byte }{
	{0xf0, 0xb8},
	{0xe1, 0xb1},
	{0xd2, 0xaa},
	{0xc3, 0xa3},
	{0xb4, 0x9c},
	{0xa5, 0x95},
	{0x96, 0x8e},
	{0x87, 0x87},
}

// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/thermometer/crc8"
)

// ROM commands, valid right after a reset.
const (
	cmdReadROM         = 0x33
	cmdMatchROM        = 0x55
	cmdSkipROM         = 0xcc
	cmdSearchROM       = 0xf0
	cmdAlarmSearch     = 0xec
	cmdReadPowerSupply = 0xb4
)

// Function commands, valid once a device has been selected.
const (
	cmdWriteScratchpad = 0x4e
	cmdReadScratchpad  = 0xbe
	cmdCopyScratchpad  = 0x48
	cmdConvertT        = 0x44
	cmdRecallEEPROM    = 0xb8
)

var errNoSession = fmt.Errorf("%w: nil session", ErrProtocol)

// session is the state shared by both phases of a command sequence.
type session struct {
	d    *Dev
	gen  uint64 // value of Dev.gen at the reset that started the sequence
	used bool
}

// begin marks the session as used. It fails if the session was already used
// or if the bus was reset after it started.
func (s *session) begin() error {
	if s.used {
		return ErrSessionConsumed
	}
	s.used = true
	if s.d.gen.Load() != s.gen {
		return ErrStaleSession
	}
	return nil
}

// Selection is the state of the bus right after a reset. Exactly one ROM
// command can be issued on it.
//
// A Selection is obtained from Dev.Reset or Dev.Tx.
type Selection struct {
	s session
}

func (sel *Selection) begin() error {
	if sel == nil || sel.s.d == nil {
		return errNoSession
	}
	return sel.s.begin()
}

// ReadAddress reads the ROM code of the only device on the bus.
//
// If more than one device is present they all answer at once and the result
// fails the CRC check.
func (sel *Selection) ReadAddress() (Address, error) {
	if err := sel.begin(); err != nil {
		return 0, err
	}
	t := sel.s.d.t
	if err := t.Write([]byte{cmdReadROM}); err != nil {
		return 0, fmt.Errorf("ds18b20: read address: %w", err)
	}
	var buf [8]byte
	if err := t.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("ds18b20: read address: %w", err)
	}
	if err := crc8.Check(buf[:]); err != nil {
		return 0, err
	}
	return addressFromBytes(buf[:]), nil
}

// MatchAddress selects the device with address a. Devices with another
// address ignore the following function command.
func (sel *Selection) MatchAddress(a Address) (*Memory, error) {
	if err := sel.begin(); err != nil {
		return nil, err
	}
	var w [9]byte
	w[0] = cmdMatchROM
	b := a.Bytes()
	copy(w[1:], b[:])
	if err := sel.s.d.t.Write(w[:]); err != nil {
		return nil, fmt.Errorf("ds18b20: match address: %w", err)
	}
	return &Memory{s: session{d: sel.s.d, gen: sel.s.gen}}, nil
}

// SkipAddress selects every device on the bus.
//
// It is meant for single device buses, or for commands that do not read
// anything back such as a conversion.
func (sel *Selection) SkipAddress() (*Memory, error) {
	if err := sel.begin(); err != nil {
		return nil, err
	}
	if err := sel.s.d.t.Write([]byte{cmdSkipROM}); err != nil {
		return nil, fmt.Errorf("ds18b20: skip address: %w", err)
	}
	return &Memory{s: session{d: sel.s.d, gen: sel.s.gen}}, nil
}

// SearchAlarm is not implemented.
func (sel *Selection) SearchAlarm() error {
	if err := sel.begin(); err != nil {
		return err
	}
	return &UnsupportedError{Command: "alarm search"}
}

// Memory is the state of the bus once a device is selected. Exactly one
// function command can be issued on it, the bus must then be reset.
type Memory struct {
	s session
}

func (m *Memory) begin() error {
	if m == nil || m.s.d == nil {
		return errNoSession
	}
	return m.s.begin()
}

// ReadScratchpad reads the 9 bytes of scratchpad, checks the CRC and decodes
// them.
func (m *Memory) ReadScratchpad() (Scratchpad, error) {
	if err := m.begin(); err != nil {
		return Scratchpad{}, err
	}
	t := m.s.d.t
	if err := t.Write([]byte{cmdReadScratchpad}); err != nil {
		return Scratchpad{}, fmt.Errorf("ds18b20: read scratchpad: %w", err)
	}
	var buf [ScratchpadSize]byte
	if err := t.Read(buf[:]); err != nil {
		return Scratchpad{}, fmt.Errorf("ds18b20: read scratchpad: %w", err)
	}
	if err := crc8.Check(buf[:]); err != nil {
		// The bus idles high, nobody pulled it low.
		if allOnes(buf[:]) {
			return Scratchpad{}, fmt.Errorf("ds18b20: device did not respond: %w", err)
		}
		return Scratchpad{}, err
	}
	return DecodeScratchpad(buf)
}

// WriteScratchpad writes the alarm thresholds and the configuration register.
// The values are lost at power off unless copied to EEPROM.
func (m *Memory) WriteScratchpad(s Scratchpad) error {
	if err := m.begin(); err != nil {
		return err
	}
	data, err := s.Encode()
	if err != nil {
		return err
	}
	t := m.s.d.t
	if err := t.Write([]byte{cmdWriteScratchpad}); err != nil {
		return fmt.Errorf("ds18b20: write scratchpad: %w", err)
	}
	if err := t.Write(data[:]); err != nil {
		return fmt.Errorf("ds18b20: write scratchpad: %w", err)
	}
	if err := m.s.d.commit(onewire.WeakPullup); err != nil {
		return fmt.Errorf("ds18b20: write scratchpad: %w", err)
	}
	return nil
}

// ConvertTemperature starts a conversion and waits for it to complete.
//
// The wait always assumes 12 bits of resolution, use ConvertTemperatureFor
// to wait less on a device configured with fewer bits.
func (m *Memory) ConvertTemperature() error {
	return m.ConvertTemperatureFor(Resolution12)
}

// ConvertTemperatureFor starts a conversion and waits for r.ConversionTime().
//
// The bus is left in strong pull-up mode during the conversion when the
// transport supports it, to power parasitic devices.
func (m *Memory) ConvertTemperatureFor(r Resolution) error {
	if err := m.begin(); err != nil {
		return err
	}
	if err := m.s.d.t.Write([]byte{cmdConvertT}); err != nil {
		return fmt.Errorf("ds18b20: convert: %w", err)
	}
	if err := m.s.d.commit(onewire.StrongPullup); err != nil {
		return fmt.Errorf("ds18b20: convert: %w", err)
	}
	sleep(r.ConversionTime())
	return nil
}

// LoadScratchpad would copy TH, TL and the configuration register to EEPROM.
// It is not implemented.
func (m *Memory) LoadScratchpad() error {
	if err := m.begin(); err != nil {
		return err
	}
	return &UnsupportedError{Command: "copy scratchpad"}
}

// SaveScratchpad would recall TH, TL and the configuration register from
// EEPROM. It is not implemented.
func (m *Memory) SaveScratchpad() error {
	if err := m.begin(); err != nil {
		return err
	}
	return &UnsupportedError{Command: "recall EEPROM"}
}

// ReadPowerSupply would report whether the device is parasite powered. It is
// not implemented.
func (m *Memory) ReadPowerSupply() error {
	if err := m.begin(); err != nil {
		return err
	}
	return &UnsupportedError{Command: "read power supply"}
}

// commit ends a sequence that finishes with a write.
func (d *Dev) commit(power onewire.Pullup) error {
	if c, ok := d.t.(Committer); ok {
		return c.Commit(power)
	}
	return nil
}

func allOnes(b []byte) bool {
	for _, v := range b {
		if v != 0xff {
			return false
		}
	}
	return true
}

var sleep = time.Sleep

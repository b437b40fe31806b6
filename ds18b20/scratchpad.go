// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Resolution is the number of significant bits of a temperature conversion.
//
// The zero value is the 12 bits power-on default.
type Resolution uint8

const (
	Resolution12 Resolution = iota // 0.0625°C, 750ms
	Resolution11                   // 0.125°C, 375ms
	Resolution10                   // 0.25°C, 187.5ms
	Resolution9                    // 0.5°C, 93.75ms
)

// maxConversionTime is the conversion time at 12 bits, datasheet p.3.
const maxConversionTime = 750 * time.Millisecond

// ResolutionFromBits returns the Resolution for 9..12 bits.
func ResolutionFromBits(bits int) (Resolution, error) {
	if bits < 9 || bits > 12 {
		return 0, fmt.Errorf("ds18b20: invalid resolution %d bits, expected 9..12", bits)
	}
	return Resolution(12 - bits), nil
}

// Bits returns the number of bits, 9 to 12.
func (r Resolution) Bits() int {
	return 12 - int(r)
}

func (r Resolution) valid() bool {
	return r <= Resolution9
}

func (r Resolution) String() string {
	if !r.valid() {
		return fmt.Sprintf("Resolution(%d)", uint8(r))
	}
	return fmt.Sprintf("%d bits", r.Bits())
}

// ConversionTime returns how long a temperature conversion takes at this
// resolution. Each bit less halves the 750ms needed at 12 bits.
func (r Resolution) ConversionTime() time.Duration {
	if !r.valid() {
		return maxConversionTime
	}
	return maxConversionTime >> uint(r)
}

// Step returns the temperature value of the least significant valid bit.
func (r Resolution) Step() physic.Temperature {
	if !r.valid() {
		return physic.Kelvin / 16
	}
	return physic.Kelvin / 16 << uint(r)
}

// The configuration register holds the resolution in bits 5 and 6; the low 5
// bits always read as 1 and bit 7 as 0.
const (
	configNine   byte = 0b0001_1111
	configTen    byte = 0b0011_1111
	configEleven byte = 0b0101_1111
	configTwelve byte = 0b0111_1111
)

// ConfigurationRegister is the decoded content of scratchpad byte 4.
type ConfigurationRegister struct {
	Resolution Resolution
}

// ParseConfigurationRegister decodes a configuration register value. Only
// the 4 bit patterns the device can produce are accepted.
func ParseConfigurationRegister(b byte) (ConfigurationRegister, error) {
	switch b {
	case configNine:
		return ConfigurationRegister{Resolution: Resolution9}, nil
	case configTen:
		return ConfigurationRegister{Resolution: Resolution10}, nil
	case configEleven:
		return ConfigurationRegister{Resolution: Resolution11}, nil
	case configTwelve:
		return ConfigurationRegister{Resolution: Resolution12}, nil
	default:
		return ConfigurationRegister{}, &ConfigurationRegisterError{Value: b}
	}
}

// Byte encodes the register. It returns an error only if Resolution is not
// one of the defined constants.
func (c ConfigurationRegister) Byte() (byte, error) {
	switch c.Resolution {
	case Resolution9:
		return configNine, nil
	case Resolution10:
		return configTen, nil
	case Resolution11:
		return configEleven, nil
	case Resolution12:
		return configTwelve, nil
	default:
		return 0, fmt.Errorf("ds18b20: invalid %s", c.Resolution)
	}
}

// ScratchpadSize is the number of bytes returned by a read scratchpad
// command, CRC included.
const ScratchpadSize = 9

// Scratchpad is the device memory image.
//
// Only AlarmHigh, AlarmLow and Configuration can be written; the other
// fields are computed by the device.
type Scratchpad struct {
	Temperature   float32 // °C, derived from bytes 0 and 1
	AlarmHigh     int8    // TH register
	AlarmLow      int8    // TL register
	Configuration ConfigurationRegister
	Reserved      [3]byte // bytes 5..7
	CRC           byte
}

// DecodeScratchpad decodes the 9 bytes returned by a read scratchpad command.
//
// The CRC must have been checked by the caller. An error is returned if the
// configuration register is not valid, in which case the temperature must not
// be trusted either.
func DecodeScratchpad(buf [ScratchpadSize]byte) (Scratchpad, error) {
	cfg, err := ParseConfigurationRegister(buf[4])
	if err != nil {
		return Scratchpad{}, err
	}
	return Scratchpad{
		// The temperature is sent LSB first.
		Temperature:   Temperature(buf[1], buf[0]),
		AlarmHigh:     int8(buf[2]),
		AlarmLow:      int8(buf[3]),
		Configuration: cfg,
		Reserved:      [3]byte{buf[5], buf[6], buf[7]},
		CRC:           buf[8],
	}, nil
}

// Encode returns the TH, TL and configuration bytes, in the order expected
// by the write scratchpad command.
func (s *Scratchpad) Encode() ([3]byte, error) {
	cfg, err := s.Configuration.Byte()
	if err != nil {
		return [3]byte{}, err
	}
	return [3]byte{byte(s.AlarmHigh), byte(s.AlarmLow), cfg}, nil
}

// Celsius returns the temperature in periph units.
func (s *Scratchpad) Celsius() physic.Temperature {
	return celsius(s.Temperature)
}

// Temperature converts the raw temperature word to °C.
//
// The word is a 16-bit two's complement value with 4 fractional bits. Bits
// below the configured resolution are undefined and are not masked.
func Temperature(msb, lsb byte) float32 {
	return float32(int16(binary.BigEndian.Uint16([]byte{msb, lsb}))) / 16
}

func celsius(c float32) physic.Temperature {
	// c has at most 4 fractional bits so the conversion through
	// sixteenths is exact.
	return physic.Temperature(c*16)*physic.Kelvin/16 + physic.ZeroCelsius
}

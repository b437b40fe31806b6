// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package crc8 implements the Dallas/Maxim 8-bit CRC used on the 1-Wire
// bus to protect ROM codes and scratchpad contents.
//
// The generator polynomial is x^8 + x^5 + x^4 + 1, processed LSB first. A
// useful property of this CRC is that running it over data followed by its
// own CRC byte yields 0, so a received frame can be checked without
// splitting off the trailing CRC.
package crc8

import "fmt"

// feedback is the reflected form of the x^8 + x^5 + x^4 + 1 polynomial.
const feedback = 0x8c

// Calculate returns the CRC of data with a zero seed.
func Calculate(data []byte) byte {
	return CalculateWithInitial(0, data)
}

// CalculateWithInitial returns the CRC of data starting from seed.
func CalculateWithInitial(seed byte, data []byte) byte {
	crc := seed
	for _, b := range data {
		crc ^= b
		for range 8 {
			bit := crc & 1
			crc >>= 1
			if bit != 0 {
				crc ^= feedback
			}
		}
	}
	return crc
}

// Check returns nil if data, including its trailing CRC byte, passes the CRC
// check. Otherwise it returns an *Error carrying the computed value.
func Check(data []byte) error {
	if crc := Calculate(data); crc != 0 {
		return &Error{CRC: crc}
	}
	return nil
}

// Error is returned by Check when the data is corrupted.
//
// It implements onewire.BusError since a bad CRC is caused by noise on the
// bus or a misaligned read, not by a fault of the bus master.
type Error struct {
	CRC byte // computed CRC, never 0
}

func (e *Error) Error() string {
	return fmt.Sprintf("crc8: unexpected CRC %#02x, expected 0", e.CRC)
}

// BusError implements onewire.BusError.
func (e *Error) BusError() bool { return true }

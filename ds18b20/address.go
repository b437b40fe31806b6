// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/thermometer/crc8"
)

// Family code of the specific device type
type Family byte

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	default:
		return fmt.Sprintf("unknown(%#02x)", byte(f))
	}
}

const DS18B20 Family = 0x28
const DS18S20 Family = 0x10

// FamilyCode is the only family accepted by Dev.Search.
const FamilyCode = DS18B20

// Address is the 64-bit ROM code of a device on the bus.
//
// It uses the same layout as onewire.Address:
//
//	 MSB                                                  LSB
//	+-------------+------------------------+----------------+
//	|  8-bit CRC  |  48-bit serial number  |  family code   |
//	+-------------+------------------------+----------------+
//
// The bytes travel on the wire least significant first, so the family code
// is the first byte read and the CRC the last.
type Address uint64

// FamilyCode returns the device type identifier.
func (a Address) FamilyCode() Family {
	return Family(a & 0xff)
}

// Serial returns the 48-bit serial number.
func (a Address) Serial() uint64 {
	return uint64(a>>8) & 0xffffffffffff
}

// CRC returns the CRC byte stored in the address.
func (a Address) CRC() byte {
	return byte(a >> 56)
}

// Bytes returns the address in wire order.
func (a Address) Bytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(a))
	return b
}

// Check verifies the CRC byte of the address.
func (a Address) Check() error {
	b := a.Bytes()
	return crc8.Check(b[:])
}

func (a Address) String() string {
	return fmt.Sprintf("%#016x", uint64(a))
}

// ParseAddress parses a 64-bit address written in hex, with or without the
// 0x prefix, as printed by Address.String.
func ParseAddress(s string) (Address, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if h == "" {
		return 0, errors.New("ds18b20: empty address")
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("ds18b20: invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

// addressFromBytes builds an address from 8 bytes in wire order.
func addressFromBytes(b []byte) Address {
	return Address(binary.LittleEndian.Uint64(b))
}

// OneWire converts a to the periph representation.
func (a Address) OneWire() onewire.Address {
	return onewire.Address(a)
}

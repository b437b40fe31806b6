// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds18b20

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when no DS18B20 answered on the bus.
	ErrDeviceNotFound = errors.New("ds18b20: device not found")

	// ErrNotImplemented is matched by errors returned from commands that are
	// part of the command set but not supported by this driver.
	ErrNotImplemented = errors.New("ds18b20: not implemented")

	// ErrProtocol is matched by every violation of the reset, select, act
	// command sequence.
	ErrProtocol = errors.New("ds18b20: protocol violation")

	// ErrSessionConsumed is returned when a command is issued twice on the
	// same session. The bus must be reset to issue another command.
	ErrSessionConsumed = fmt.Errorf("%w: session already used", ErrProtocol)

	// ErrStaleSession is returned when a session is used after the bus was
	// reset again.
	ErrStaleSession = fmt.Errorf("%w: bus was reset since the session started", ErrProtocol)
)

// FamilyCodeError is returned by Search for a device that is not a DS18B20.
type FamilyCodeError struct {
	Address Address
}

func (e *FamilyCodeError) Error() string {
	return fmt.Sprintf("ds18b20: unexpected family code %#02x for %s, expected %#02x",
		byte(e.Address.FamilyCode()), e.Address, byte(FamilyCode))
}

// ConfigurationRegisterError is returned when the configuration register is
// not one of the 4 valid bit patterns. This is caused either by a corrupted
// read or by a device that was never configured.
type ConfigurationRegisterError struct {
	Value byte
}

func (e *ConfigurationRegisterError) Error() string {
	return fmt.Sprintf("ds18b20: unexpected configuration register %#08b, expected one of [%#08b %#08b %#08b %#08b]",
		e.Value, configNine, configTen, configEleven, configTwelve)
}

// UnsupportedError is returned by commands this driver does not implement.
type UnsupportedError struct {
	Command string
}

func (e *UnsupportedError) Error() string {
	return "ds18b20: " + e.Command + " not implemented"
}

// Is makes errors.Is(err, ErrNotImplemented) report true.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

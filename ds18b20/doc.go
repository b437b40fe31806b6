// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 controls Maxim DS18B20 temperature sensors on a 1-Wire bus.
//
// Every exchange with a device follows the same grammar: a bus reset, one
// ROM command that selects the devices that should listen, then one function
// command. Dev.Reset returns a *Selection which only exposes ROM commands;
// those return a *Memory which only exposes function commands. Each session
// value accepts a single command and is invalidated by the next reset, so a
// function command can never be sent to a bus on which no device was
// selected.
//
// Every byte sequence read from a device is validated with the 1-Wire CRC8
// before being interpreted.
//
// Dev provides the usual composite operations on top: Search, Status,
// Configure, Convert and Temperature. Sensor wraps a single device as a
// physic.SenseEnv.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/ds18b20.pdf
package ds18b20

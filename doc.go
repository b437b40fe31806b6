// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thermometer is a container for the DS18B20 1-wire thermometer
// driver, its bus masters and the thermometer daemon.
//
// The driver lives in ds18b20, the I²C bus master in ds248x and the daemon in
// cmd/thermometer.
package thermometer
